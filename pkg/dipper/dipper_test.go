package dipper

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/config"
)

// fakeBroker scripts brokerage behavior per test.
type fakeBroker struct {
	account      broker.AccountSnapshot
	accountErr   error
	positions    []broker.Position
	positionsErr error
	bars         map[string][]broker.Bar
	barsCalls    int
	quotes       map[string]broker.Quote
	quoteErr     map[string]error
	clock        broker.Clock
	openOrders   []broker.Order
	openErr      error
	placed       []broker.LimitBuyRequest
	placeErr     error
	cancelled    []string
	cancelErr    error
}

func (f *fakeBroker) GetAccount() (broker.AccountSnapshot, error) {
	return f.account, f.accountErr
}

func (f *fakeBroker) GetPositions() ([]broker.Position, error) {
	return f.positions, f.positionsErr
}

func (f *fakeBroker) GetBars(symbol string, days int) ([]broker.Bar, error) {
	f.barsCalls++
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, errors.New("no data")
	}
	return bars, nil
}

func (f *fakeBroker) GetLatestQuote(symbol string) (broker.Quote, error) {
	if err := f.quoteErr[symbol]; err != nil {
		return broker.Quote{}, err
	}
	quote, ok := f.quotes[symbol]
	if !ok {
		return broker.Quote{}, errors.New("no quote")
	}
	return quote, nil
}

func (f *fakeBroker) PlaceLimitBuy(req broker.LimitBuyRequest) (broker.Order, error) {
	if f.placeErr != nil {
		return broker.Order{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	return broker.Order{
		ID:         fmt.Sprintf("order-%d", len(f.placed)),
		Symbol:     req.Symbol,
		Qty:        req.Qty,
		LimitPrice: req.LimitPrice,
	}, nil
}

func (f *fakeBroker) OpenOrders() ([]broker.Order, error) {
	return f.openOrders, f.openErr
}

func (f *fakeBroker) CancelOrder(orderID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeBroker) GetClock() (broker.Clock, error) {
	return f.clock, nil
}

var testNow = time.Date(2026, 8, 21, 11, 0, 0, 0, eastern) // Friday, regular hours

func testConfig() *config.Config {
	cfg := config.New()
	cfg.AlpacaKey = "key"
	cfg.AlpacaSecret = "secret"
	cfg.Symbols = []string{"NVDA", "MSFT", "IBIT"}
	return cfg
}

func newTestDipper(t *testing.T, cfg *config.Config, fake *fakeBroker) *Dipper {
	t.Helper()
	require.NoError(t, cfg.Validate())

	d := New(cfg, fake, zap.NewNop().Sugar())
	d.now = func() time.Time { return testNow }
	d.sleep = func(time.Duration) {}
	return d
}

// newObservedDipper is newTestDipper with a capturing logger, for tests that
// assert on emitted log lines.
func newObservedDipper(t *testing.T, cfg *config.Config, fake *fakeBroker) (*Dipper, *observer.ObservedLogs) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	core, logs := observer.New(zapcore.DebugLevel)
	d := New(cfg, fake, zap.New(core).Sugar())
	d.now = func() time.Time { return testNow }
	d.sleep = func(time.Duration) {}
	return d, logs
}

func logsContaining(logs *observer.ObservedLogs, substr string) int {
	n := 0
	for _, entry := range logs.All() {
		if strings.Contains(entry.Message, substr) {
			n++
		}
	}
	return n
}

// barsWithClose builds n identical daily bars.
func barsWithClose(n int, close float64) []broker.Bar {
	bars := make([]broker.Bar, n)
	for i := range bars {
		bars[i] = broker.Bar{
			Timestamp: testNow.AddDate(0, 0, i-n),
			Open:      close,
			High:      close,
			Low:       close,
			Close:     close,
			Volume:    1000,
		}
	}
	return bars
}

func openClock() broker.Clock {
	return broker.Clock{Timestamp: testNow, IsOpen: true}
}

func TestRunCycle_BrakeBoundaryIsExclusive(t *testing.T) {
	// Ratio exactly at the threshold must NOT trip the brake.
	fake := &fakeBroker{
		clock:   openClock(),
		account: broker.AccountSnapshot{Equity: 100000, Cash: -15000, RegTBuyingPower: 50000},
		bars:    map[string][]broker.Bar{},
		quotes:  map[string]broker.Quote{},
	}
	d := newTestDipper(t, testConfig(), fake)

	fullSleep, err := d.runCycle()
	require.NoError(t, err)
	assert.False(t, fullSleep, "ratio 0.15 is at, not over, the 0.15 threshold")
	assert.Zero(t, d.brakeCycles)
}

func TestRunCycle_BrakeTripsOverThreshold(t *testing.T) {
	fake := &fakeBroker{
		clock:   openClock(),
		account: broker.AccountSnapshot{Equity: 100000, Cash: -16000},
	}
	d := newTestDipper(t, testConfig(), fake)

	fullSleep, err := d.runCycle()
	require.NoError(t, err)
	assert.True(t, fullSleep, "ratio 0.16 trips the brake and halts the cycle")
	assert.Equal(t, 1, d.brakeCycles)

	// Counter accumulates while the brake persists.
	_, err = d.runCycle()
	require.NoError(t, err)
	assert.Equal(t, 2, d.brakeCycles)

	// And resets the instant the ratio drops back under.
	fake.account.Cash = -10000
	fake.positions = nil
	_, err = d.runCycle()
	require.NoError(t, err)
	assert.Zero(t, d.brakeCycles)
}

func TestRunCycle_BrakeMissedScanWindow(t *testing.T) {
	// The missed-opportunity scan runs only on brake cycles 10, 20 and 30.
	cfg := testConfig()
	cfg.Symbols = []string{"NVDA"}
	fake := &fakeBroker{
		clock:   openClock(),
		account: broker.AccountSnapshot{Equity: 100000, Cash: -16000},
		bars:    map[string][]broker.Bar{"NVDA": barsWithClose(20, 100.0)},
		quotes:  map[string]broker.Quote{"NVDA": {BidPrice: 94.0}},
	}
	d := newTestDipper(t, cfg, fake)

	var scansAt []int
	for i := 1; i <= 35; i++ {
		before := fake.barsCalls
		_, err := d.runCycle()
		require.NoError(t, err)
		if fake.barsCalls > before {
			scansAt = append(scansAt, i)
		}
	}

	assert.Equal(t, []int{10, 20, 30}, scansAt)
}

func TestRunCycle_NonPositiveEquityIsFatal(t *testing.T) {
	fake := &fakeBroker{
		clock:   openClock(),
		account: broker.AccountSnapshot{Equity: -1000, Cash: 0},
	}
	d := newTestDipper(t, testConfig(), fake)

	_, err := d.runCycle()
	assert.ErrorIs(t, err, ErrEquityDepleted)
}

func TestRunCycle_PositionListingFailureSkipsCycle(t *testing.T) {
	fake := &fakeBroker{
		clock:        openClock(),
		account:      broker.AccountSnapshot{Equity: 100000, Cash: 50000},
		positionsErr: errors.New("unexpected asset class"),
	}
	d := newTestDipper(t, testConfig(), fake)

	fullSleep, err := d.runCycle()
	require.NoError(t, err, "listing failure is a skip, not a cycle error")
	assert.True(t, fullSleep)
	assert.Empty(t, fake.placed, "never trade blind")
}

func TestRunCycle_MarketClosed(t *testing.T) {
	fake := &fakeBroker{
		clock: broker.Clock{
			Timestamp: testNow,
			IsOpen:    false,
			NextOpen:  testNow.Add(18 * time.Hour),
		},
	}
	d := newTestDipper(t, testConfig(), fake)
	// 23:00 ET: outside both extended windows.
	d.now = func() time.Time { return time.Date(2026, 8, 21, 23, 0, 0, 0, eastern) }

	fullSleep, err := d.runCycle()
	require.NoError(t, err)
	assert.True(t, fullSleep)
	assert.Empty(t, fake.placed)
}

func TestRunCycle_EndToEndBuy(t *testing.T) {
	// NVDA sits 6% under its 20-day closing high with no prior trade and no
	// position: the gate admits it and an order goes out.
	cfg := testConfig()
	cfg.Symbols = []string{"NVDA"}

	fake := &fakeBroker{
		clock:   openClock(),
		account: broker.AccountSnapshot{Equity: 32000, Cash: 32000, RegTBuyingPower: 64000},
		bars:    map[string][]broker.Bar{"NVDA": barsWithClose(21, 100.0)},
		quotes: map[string]broker.Quote{
			"NVDA": {BidPrice: 94.0, AskPrice: 94.10},
		},
	}
	d := newTestDipper(t, cfg, fake)

	fullSleep, err := d.runCycle()
	require.NoError(t, err)
	assert.False(t, fullSleep)

	require.Len(t, fake.placed, 1)
	placed := fake.placed[0]
	assert.Equal(t, "NVDA", placed.Symbol)
	assert.False(t, placed.ExtendedHours)

	// Dip -6%, threshold 5% (NVDA): target 32000*0.025*2*1.75 = $2,800.
	wantShares := 2800.0 / 94.0
	gotShares, _ := placed.Qty.Float64()
	assert.InDelta(t, wantShares, gotShares, 0.01)

	// Regular hours: limit = ask * (1 - 0.005).
	gotLimit, _ := placed.LimitPrice.Float64()
	assert.InDelta(t, 94.10*0.995, gotLimit, 0.01)

	// Both cooldown forms are stamped and the order is tracked.
	assert.Contains(t, d.lastTradeTimes, "NVDA")
	assert.Contains(t, d.recentTrades, "NVDA")
	assert.Len(t, d.pending, 1)
}

// exhaustionFixture dips both symbols 6%: MSFT (score 2.00x) executes ahead
// of NVDA (1.20x), and each order targets $2,800.
func exhaustionFixture(cash float64) (*config.Config, *fakeBroker) {
	cfg := testConfig()
	cfg.Symbols = []string{"NVDA", "MSFT"}

	fake := &fakeBroker{
		clock:   openClock(),
		account: broker.AccountSnapshot{Equity: 32000, Cash: cash, RegTBuyingPower: 64000},
		bars: map[string][]broker.Bar{
			"NVDA": barsWithClose(21, 100.0),
			"MSFT": barsWithClose(21, 200.0),
		},
		quotes: map[string]broker.Quote{
			"NVDA": {BidPrice: 94.0, AskPrice: 94.10},
			"MSFT": {BidPrice: 188.0, AskPrice: 188.20},
		},
	}
	return cfg, fake
}

func TestRunCycle_CapitalExhaustionAfterExecution(t *testing.T) {
	// Cash -$3,000 against the 20% cap on $32,000 equity: the first $2,800
	// order projects $5,800 of debt (18.1%) and executes, the second projects
	// $8,600 (26.9%) and is denied. One execution preceded the denial, so the
	// exhaustion report fires.
	cfg, fake := exhaustionFixture(-3000)
	d, logs := newObservedDipper(t, cfg, fake)

	_, err := d.runCycle()
	require.NoError(t, err)

	require.Len(t, fake.placed, 1)
	assert.Equal(t, "MSFT", fake.placed[0].Symbol)
	assert.Equal(t, 1, logsContaining(logs, "CAPITAL EXHAUSTED"))
}

func TestRunCycle_NoExhaustionWithoutExecution(t *testing.T) {
	// Cash -$4,500: even the first order projects $7,300 of debt (22.8%) and
	// is denied. Nothing executed this cycle, so capital denials mean "nothing
	// fits", not exhaustion, and the report stays silent.
	cfg, fake := exhaustionFixture(-4500)
	d, logs := newObservedDipper(t, cfg, fake)

	_, err := d.runCycle()
	require.NoError(t, err)

	assert.Empty(t, fake.placed)
	assert.Zero(t, logsContaining(logs, "CAPITAL EXHAUSTED"))
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 10*time.Second, backoffDelay(0))
	assert.Equal(t, 20*time.Second, backoffDelay(1))
	assert.Equal(t, 40*time.Second, backoffDelay(2))
	assert.Equal(t, 60*time.Second, backoffDelay(3), "capped at the max delay")
	assert.Equal(t, 60*time.Second, backoffDelay(10))
}
