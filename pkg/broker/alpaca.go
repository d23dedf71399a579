package broker

import (
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/google/uuid"
)

const paperBaseURL = "https://paper-api.alpaca.markets"

// Alpaca implements Broker over the Alpaca trading and market-data APIs.
type Alpaca struct {
	trading *alpaca.Client
	data    *marketdata.Client
}

// NewAlpaca builds a broker from API credentials. Paper selects the paper
// trading endpoint; market data always uses the production endpoint.
func NewAlpaca(apiKey, apiSecret string, paper bool) *Alpaca {
	baseURL := ""
	if paper {
		baseURL = paperBaseURL
	}

	return &Alpaca{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
	}
}

func (b *Alpaca) GetAccount() (AccountSnapshot, error) {
	account, err := b.trading.GetAccount()
	if err != nil {
		return AccountSnapshot{}, fmt.Errorf("failed to get account: %w", err)
	}

	return AccountSnapshot{
		Equity:          account.Equity.InexactFloat64(),
		Cash:            account.Cash.InexactFloat64(),
		BuyingPower:     account.BuyingPower.InexactFloat64(),
		RegTBuyingPower: account.RegTBuyingPower.InexactFloat64(),
	}, nil
}

func (b *Alpaca) GetPositions() ([]Position, error) {
	raw, err := b.trading.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		pos := Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			CostBasis:     p.CostBasis.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			AssetClass:    string(p.AssetClass),
		}
		if p.MarketValue != nil {
			pos.MarketValue = p.MarketValue.InexactFloat64()
		}
		if p.CurrentPrice != nil {
			pos.CurrentPrice = p.CurrentPrice.InexactFloat64()
		}
		if p.UnrealizedPL != nil {
			pos.UnrealizedPL = p.UnrealizedPL.InexactFloat64()
		}
		if p.UnrealizedPLPC != nil {
			pos.UnrealizedPLPC = p.UnrealizedPLPC.InexactFloat64()
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (b *Alpaca) GetBars(symbol string, days int) ([]Bar, error) {
	// Request twice the calendar span: 20 trading days is roughly 30
	// calendar days, and holiday weeks stretch it further.
	start := time.Now().AddDate(0, 0, -days*2)

	raw, err := b.data.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(raw))
	for _, r := range raw {
		bars = append(bars, Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

func (b *Alpaca) GetLatestQuote(symbol string) (Quote, error) {
	quote, err := b.data.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return Quote{}, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	return Quote{
		Timestamp: quote.Timestamp,
		BidPrice:  quote.BidPrice,
		AskPrice:  quote.AskPrice,
	}, nil
}

func (b *Alpaca) PlaceLimitBuy(req LimitBuyRequest) (Order, error) {
	qty := req.Qty
	limitPrice := req.LimitPrice

	order, err := b.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          alpaca.Buy,
		Type:          alpaca.Limit,
		TimeInForce:   alpaca.Day,
		LimitPrice:    &limitPrice,
		ExtendedHours: req.ExtendedHours,
		ClientOrderID: uuid.NewString(),
	})
	if err != nil {
		return Order{}, fmt.Errorf("failed to place order for %s: %w", req.Symbol, err)
	}

	return fromAlpacaOrder(*order), nil
}

func (b *Alpaca) OpenOrders() ([]Order, error) {
	raw, err := b.trading.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}

	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, fromAlpacaOrder(o))
	}
	return orders, nil
}

func (b *Alpaca) CancelOrder(orderID string) error {
	if err := b.trading.CancelOrder(orderID); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

func (b *Alpaca) GetClock() (Clock, error) {
	clock, err := b.trading.GetClock()
	if err != nil {
		return Clock{}, fmt.Errorf("failed to get clock: %w", err)
	}

	return Clock{
		Timestamp: clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
	}, nil
}

func fromAlpacaOrder(o alpaca.Order) Order {
	order := Order{
		ID:          o.ID,
		Symbol:      o.Symbol,
		SubmittedAt: o.SubmittedAt,
	}
	if o.Qty != nil {
		order.Qty = *o.Qty
	}
	if o.LimitPrice != nil {
		order.LimitPrice = *o.LimitPrice
	}
	return order
}
