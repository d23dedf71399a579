// Package dipper implements the buy-the-dip trading controller: a
// single-threaded cycle loop that scans a watchlist for dips, prioritizes
// and executes buys under margin constraints, and reconciles pending orders
// against the brokerage.
//
// The brokerage is the single source of truth. Every cycle re-reads account,
// positions and orders; the only in-memory state is the cooldown maps, the
// pending-order map, and the per-cycle committed capital total.
//
// The INFO log stream doubles as a versioned text protocol: an external
// dashboard pattern-matches the buy confirmation, account summary, scored
// opportunity, brake status and capital exhaustion lines. Changing any of
// those shapes requires a lockstep change in the downstream parser.
package dipper

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/config"
	"bigdipper/pkg/diplogic"
	"bigdipper/pkg/metrics"
)

// Version appears in the startup banner.
const Version = "2.16"

// ErrEquityDepleted halts the loop entirely: continuing to operate on an
// account with non-positive equity is unsafe, so it is never retried.
var ErrEquityDepleted = errors.New("account equity is non-positive")

const (
	backoffBase = 10 * time.Second
	backoffMax  = 60 * time.Second
)

// Dipper owns all mutable in-process state. Construct once at startup; the
// cycle loop is the only reader and writer, so no locking is needed.
type Dipper struct {
	cfg    *config.Config
	broker broker.Broker
	log    *zap.SugaredLogger

	// Cooldown memory, held in two redundant forms so a failure in one does
	// not defeat the cooldown invariant.
	lastTradeTimes map[string]time.Time
	recentTrades   map[string]int64 // symbol -> epoch seconds

	pending map[string]pendingOrder

	cycleOrderValue float64 // capital committed this cycle, reset at cycle start
	brakeCycles     int     // consecutive cycles the emergency brake has been active
	retryCount      int
	cycleCount      int
	optionsLogged   bool

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New builds the controller and logs the startup banner. The configuration
// must already be validated.
func New(cfg *config.Config, b broker.Broker, log *zap.SugaredLogger) *Dipper {
	d := &Dipper{
		cfg:            cfg,
		broker:         b,
		log:            log,
		lastTradeTimes: make(map[string]time.Time),
		recentTrades:   make(map[string]int64),
		pending:        make(map[string]pendingOrder),
		now:            time.Now,
		sleep:          time.Sleep,
	}

	mode := "LIVE"
	if cfg.Paper {
		mode = "PAPER"
	}
	log.Infof("🌟 Big Dipper v%s started in %s mode", Version, mode)
	log.Infof("📊 Watching %d symbols: %s", len(cfg.Symbols), strings.Join(cfg.Symbols, ", "))

	lo, hi := thresholdRange(cfg.DipThresholds)
	log.Infof("📉 Default dip: %s, Range: %.1f%%-%.1f%%, Base position: %s",
		diplogic.FormatPercent(cfg.DipThreshold(config.DefaultThresholdKey)),
		lo*100, hi*100,
		diplogic.FormatPercent(cfg.BasePositionPct))

	return d
}

// Run drives the cycle loop until a fatal condition. Unexpected cycle
// errors trigger exponential backoff and retry; ErrEquityDepleted (or any
// other fatal error) terminates the loop.
func (d *Dipper) Run() error {
	d.log.Info("🚀 Starting main loop...")

	for {
		d.cycleCount++
		cycleStart := d.now()

		d.log.Infof("\n%s", strings.Repeat("=", 60))
		d.log.Infof("Cycle #%d - %s", d.cycleCount, cycleStart.Format("15:04:05"))
		d.log.Info(strings.Repeat("=", 60))

		fullSleep, err := d.safeCycle()
		if errors.Is(err, ErrEquityDepleted) {
			return err
		}
		if err != nil {
			metrics.IncCycleErrors()
			wait := backoffDelay(d.retryCount)
			d.log.Errorf("❌ Cycle error: %v", err)
			d.log.Warnf("⏸️  Pausing %.0fs before retry (attempt %d)...",
				wait.Seconds(), d.retryCount+1)
			d.retryCount++
			d.sleep(wait)
			continue
		}

		d.retryCount = 0
		metrics.IncCycles()

		if fullSleep {
			d.sleep(d.cfg.ScanInterval)
			continue
		}

		elapsed := d.now().Sub(cycleStart)
		remaining := d.cfg.ScanInterval - elapsed
		if remaining < 0 {
			remaining = 0
		}
		d.log.Infof("⏱️  Cycle took %.1fs, sleeping %.1fs...",
			elapsed.Seconds(), remaining.Seconds())
		d.sleep(remaining)
	}
}

// safeCycle converts a cycle panic into an error so the loop's backoff path
// handles it like any other cycle failure.
func (d *Dipper) safeCycle() (fullSleep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return d.runCycle()
}

// runCycle is one pass of the decision engine: session check, account and
// position snapshot, brake check, scan, prioritize, execute, reconcile.
// fullSleep=true means the cycle ended early (market closed, brake, unsafe
// positions) and the caller should sleep the whole interval.
func (d *Dipper) runCycle() (bool, error) {
	clock, err := d.broker.GetClock()
	if err != nil {
		return false, err
	}

	session, sessionName := marketSession(clock, d.now())
	if session == sessionClosed ||
		(session == sessionExtended && !d.cfg.TradeExtendedHours) {
		d.log.Infof("💤 Market closed. Next open: %s",
			clock.NextOpen.In(eastern).Format("2006-01-02 15:04 ET"))
		d.log.Infof("Sleeping %.0f seconds...", d.cfg.ScanInterval.Seconds())
		return true, nil
	}

	extendedHours := session == sessionExtended
	if extendedHours {
		d.log.Infof("🌙 %s (extended hours)", sessionName)
	} else {
		d.log.Infof("☀️ %s (regular hours)", sessionName)
	}

	// Fresh account state; everything downstream uses this snapshot.
	d.cycleOrderValue = 0
	account, err := d.broker.GetAccount()
	if err != nil {
		return false, err
	}

	if account.Equity <= 0 {
		d.log.Errorf("❌ CRITICAL: Account equity is $%.2f (≤ 0) - halting trading", account.Equity)
		return false, ErrEquityDepleted
	}

	marginRatio := account.MarginRatio()
	metrics.SetAccount(account.Equity, marginRatio)

	// Emergency brake: adding new margin on top of an already-elevated
	// ratio is the exact failure mode being prevented, so nothing else
	// runs this cycle. The boundary is exclusive: exactly at the threshold
	// still trades.
	if d.cfg.UseMargin && marginRatio > d.cfg.MarginSafetyThreshold {
		d.brakeCycles++
		metrics.SetBrakeActive(true)

		var missed []Opportunity
		if d.brakeCycles >= brakeReportStart && d.brakeCycles <= brakeReportEnd &&
			d.brakeCycles%brakeReportEvery == 0 {
			d.log.Info("📊 Scanning for missed opportunities (brake persists)...")
			missed = d.scanDuringBrake()
		}

		d.logBrakeStatus(account, marginRatio, missed)
		d.log.Error("   HALTING ALL TRADING this cycle")
		return true, nil
	}
	d.brakeCycles = 0
	metrics.SetBrakeActive(false)

	d.logAccountSummary(account, marginRatio)

	positionMap, ok := d.snapshotPositions(account.Equity)
	if !ok {
		return true, nil
	}

	opportunities := d.scanWatchlist(account.Equity, positionMap)
	metrics.AddOpportunities(len(opportunities))

	executed := 0
	var skippedCapital []Opportunity
	for _, opp := range opportunities {
		switch d.executeOpportunity(opp, account, extendedHours) {
		case outcomeExecuted:
			executed++
		case outcomeCapital:
			// Only capital denials after at least one execution count as
			// exhaustion; before that, nothing was large enough to trade.
			if d.cycleOrderValue > 0 {
				skippedCapital = append(skippedCapital, opp)
			}
		}
	}

	if len(skippedCapital) > 0 {
		d.logCapitalExhaustion(skippedCapital)
	}

	d.managePendingOrders()
	return false, nil
}

func (d *Dipper) logAccountSummary(account broker.AccountSnapshot, marginRatio float64) {
	if d.cfg.UseMargin {
		d.log.Infof("💰 Account: %s equity, %s cash, Margin: %s/%s",
			diplogic.FormatMoney(account.Equity),
			diplogic.FormatMoney(account.Cash),
			diplogic.FormatPercent(marginRatio),
			diplogic.FormatPercent(d.cfg.MaxMarginPct))

		if marginRatio > d.cfg.MaxMarginPct-0.05 {
			d.log.Warn("⚠️  APPROACHING MARGIN LIMIT")
		}
		return
	}

	d.log.Infof("💰 Account: %s equity, %s cash (%s)",
		diplogic.FormatMoney(account.Equity),
		diplogic.FormatMoney(account.Cash),
		diplogic.FormatPercent(account.Cash/account.Equity))
}

// snapshotPositions lists and filters positions to tradeable equities.
// ok=false means exposure cannot be assessed (listing failed) and the whole
// trading cycle must be skipped rather than trade blind.
func (d *Dipper) snapshotPositions(equity float64) (map[string]float64, bool) {
	positions, err := d.broker.GetPositions()
	if err != nil {
		d.log.Errorf("❌ POSITION TRACKING FAILED: %v", err)
		d.log.Error("⏸️  HALTING ALL TRADING this cycle to prevent over-allocation")
		d.log.Errorf("   Next retry in %.0f seconds...", d.cfg.ScanInterval.Seconds())
		return nil, false
	}

	positionMap := make(map[string]float64)
	optionsCount := 0
	for _, p := range positions {
		switch p.AssetClass {
		case "us_equity":
			if !d.cfg.IsCollateral(p.Symbol) {
				positionMap[p.Symbol] = p.MarketValue
			}
		case "us_option":
			optionsCount++
		}
	}

	if optionsCount > 0 && !d.optionsLogged {
		d.log.Infof("ℹ️  Detected %d options position(s) - excluded from Big Dipper", optionsCount)
		d.optionsLogged = true
	}

	if len(positionMap) > 0 {
		totalInvested := 0.0
		for _, v := range positionMap {
			totalInvested += v
		}
		d.log.Infof("📊 Positions: %d stocks, %s invested (%s)",
			len(positionMap),
			diplogic.FormatMoney(totalInvested),
			diplogic.FormatPercent(totalInvested/equity))
	} else {
		d.log.Info("📊 Positions: None")
	}

	return positionMap, true
}

func backoffDelay(retry int) time.Duration {
	delay := backoffBase
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= backoffMax {
			return backoffMax
		}
	}
	return delay
}

func thresholdRange(thresholds map[string]float64) (lo, hi float64) {
	first := true
	for _, t := range thresholds {
		if first {
			lo, hi = t, t
			first = false
			continue
		}
		if t < lo {
			lo = t
		}
		if t > hi {
			hi = t
		}
	}
	return lo, hi
}
