// Package broker defines the brokerage surface the trading controller
// depends on, plus the value types it exchanges. The live implementation
// talks to Alpaca; tests substitute a scripted fake.
package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one trading session's OHLCV for a symbol. Immutable once fetched.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
}

// Quote is the latest bid/ask for a symbol at fetch time.
type Quote struct {
	Timestamp time.Time
	BidPrice  float64
	AskPrice  float64
}

// AccountSnapshot is the account state read fresh each cycle. Margin debt
// and margin ratio are derived, never stored.
type AccountSnapshot struct {
	Equity          float64
	Cash            float64
	BuyingPower     float64
	RegTBuyingPower float64
}

// MarginDebt is borrowed funds: negative cash, floored at zero.
func (a AccountSnapshot) MarginDebt() float64 {
	if a.Cash < 0 {
		return -a.Cash
	}
	return 0
}

// MarginRatio is margin debt over equity. Callers must treat equity <= 0 as
// a fatal halt condition before consulting the ratio.
func (a AccountSnapshot) MarginRatio() float64 {
	if a.Equity <= 0 {
		return 0
	}
	return a.MarginDebt() / a.Equity
}

// Position is a held instrument as reported by the brokerage.
type Position struct {
	Symbol         string
	Qty            float64
	MarketValue    float64
	CostBasis      float64
	AvgEntryPrice  float64
	CurrentPrice   float64
	UnrealizedPL   float64
	UnrealizedPLPC float64
	AssetClass     string
}

// Order is a brokerage order. SubmittedAt is the brokerage's own submission
// timestamp and is the authoritative age reference during reconciliation; it
// may be zero when the brokerage omits it.
type Order struct {
	ID          string
	Symbol      string
	Qty         decimal.Decimal
	LimitPrice  decimal.Decimal
	SubmittedAt time.Time
}

// LimitBuyRequest describes a day limit buy. Fractional quantities are
// allowed; ExtendedHours marks orders placed outside the regular session.
type LimitBuyRequest struct {
	Symbol        string
	Qty           decimal.Decimal
	LimitPrice    decimal.Decimal
	ExtendedHours bool
}

// Clock is the brokerage market clock.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
}

// Broker is everything the controller needs from the brokerage. All calls
// are blocking; a slow call simply extends the current cycle.
type Broker interface {
	// GetAccount returns a fresh account snapshot.
	GetAccount() (AccountSnapshot, error)

	// GetPositions lists all open positions. An error means exposure cannot
	// be assessed safely and the caller must skip the whole trading cycle.
	GetPositions() ([]Position, error)

	// GetBars returns at least the requested number of most recent daily
	// bars for symbol, oldest first, when that much history exists.
	GetBars(symbol string, days int) ([]Bar, error)

	// GetLatestQuote returns the current quote, or an error if none is
	// available. Callers fall back to the last bar close.
	GetLatestQuote(symbol string) (Quote, error)

	// PlaceLimitBuy submits a day limit buy order.
	PlaceLimitBuy(req LimitBuyRequest) (Order, error)

	// OpenOrders lists orders the brokerage still considers open.
	OpenOrders() ([]Order, error)

	// CancelOrder cancels an open order by identifier.
	CancelOrder(orderID string) error

	// GetClock returns the market clock.
	GetClock() (Clock, error)
}
