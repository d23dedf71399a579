package dipper

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/diplogic"
	"bigdipper/pkg/metrics"
)

// minShares is the smallest order the brokerage accepts.
const minShares = 0.01

// extendedHoursBidMarkup prices extended-hours orders just above the bid to
// meet the spread instead of crossing it.
const extendedHoursBidMarkup = 1.001

type outcome int

const (
	outcomeExecuted outcome = iota
	outcomeTooSmall
	outcomeCapital
	outcomeError
)

// executeOpportunity sizes and places one order. Orders run strictly in
// priority order, one at a time, because every capital check projects
// against the cumulative commitment of everything already executed this
// cycle; parallel submission would defeat that.
func (d *Dipper) executeOpportunity(opp Opportunity, account broker.AccountSnapshot, extendedHours bool) outcome {
	shares := diplogic.CalculateShares(diplogic.SizingInput{
		DipPct:               opp.DipPct,
		CurrentPrice:         opp.CurrentPrice,
		Equity:               account.Equity,
		CurrentPositionValue: opp.CurrentPositionValue,
		BasePct:              d.cfg.BasePositionPct,
		MaxPct:               d.cfg.MaxPositionPct,
		DipMultiplier:        d.cfg.DipMultiplier,
		VolatilityFactor:     opp.VolatilityFactor,
		IntradayMultiplier:   opp.IntradayMultiplier,
		Fractional:           true,
	})

	if shares < minShares {
		d.log.Debugf("%s: Position size too small (%.4f shares)", opp.Symbol, shares)
		metrics.IncSkip("too_small")
		return outcomeTooSmall
	}

	orderValue := shares * opp.CurrentPrice

	if d.cfg.UseMargin {
		// Project post-order cash against everything already committed
		// this cycle, so sequential executions cannot collectively
		// overshoot the margin limit.
		projectedCash := account.Cash - d.cycleOrderValue - orderValue
		projectedDebt := 0.0
		if projectedCash < 0 {
			projectedDebt = -projectedCash
		}
		projectedRatio := projectedDebt / account.Equity

		if projectedRatio > d.cfg.MaxMarginPct {
			d.log.Warnf("%s: Would exceed margin limit (%s > %s)",
				opp.Symbol,
				diplogic.FormatPercent(projectedRatio),
				diplogic.FormatPercent(d.cfg.MaxMarginPct))
			d.log.Debugf("  Pending this cycle: %s", diplogic.FormatMoney(d.cycleOrderValue))
			metrics.IncSkip("capital")
			return outcomeCapital
		}

		if orderValue > account.RegTBuyingPower {
			d.log.Warnf("%s: Insufficient buying power (need %s, have %s)",
				opp.Symbol,
				diplogic.FormatMoney(orderValue),
				diplogic.FormatMoney(account.RegTBuyingPower))
			metrics.IncSkip("capital")
			return outcomeCapital
		}
	}

	d.log.Infof("💎 %s BUY: %s dip @ %s (score: %.2fx)",
		opp.Symbol,
		diplogic.FormatPercent(opp.DipPct),
		diplogic.FormatMoney(opp.CurrentPrice),
		opp.Score())

	if opp.IntradayMultiplier > 1.0 && opp.HasIntradayDrop {
		d.log.Infof("   📊 Filters: VolAdj %.1fx, Threshold: %s, Intraday: %s → %.1fx size",
			opp.VolatilityFactor,
			diplogic.FormatPercent(opp.Threshold),
			diplogic.FormatPercent(opp.IntradayDropPct),
			opp.IntradayMultiplier)
	} else {
		d.log.Infof("   📊 Filters: VolAdj %.1fx, Threshold: %s",
			opp.VolatilityFactor,
			diplogic.FormatPercent(opp.Threshold))
	}

	if err := d.placeOrder(opp.Symbol, shares, extendedHours); err != nil {
		d.log.Errorf("%s: Execution error - %v", opp.Symbol, err)
		metrics.IncSkip("error")
		return outcomeError
	}

	d.cycleOrderValue += orderValue
	return outcomeExecuted
}

// placeOrder prices and submits a day limit buy, then records it for
// lifecycle tracking and stamps both cooldown maps.
func (d *Dipper) placeOrder(symbol string, shares float64, extendedHours bool) error {
	quote, err := d.broker.GetLatestQuote(symbol)
	if err != nil {
		return err
	}

	askPrice := quote.AskPrice
	if askPrice <= 0 {
		askPrice = quote.BidPrice
	}
	if askPrice <= 0 {
		return fmt.Errorf("no valid quote price (ask=%v, bid=%v)", quote.AskPrice, quote.BidPrice)
	}

	var limitPrice float64
	if extendedHours && quote.BidPrice > 0 {
		limitPrice = decimal.NewFromFloat(quote.BidPrice * extendedHoursBidMarkup).
			RoundBank(2).InexactFloat64()
	} else {
		limitPrice = diplogic.CalculateLimitPrice(askPrice, d.cfg.LimitOffsetPct)
	}

	order, err := d.broker.PlaceLimitBuy(broker.LimitBuyRequest{
		Symbol:        symbol,
		Qty:           decimal.NewFromFloat(shares).Round(4),
		LimitPrice:    decimal.NewFromFloat(limitPrice),
		ExtendedHours: extendedHours,
	})
	if err != nil {
		return err
	}

	now := d.now()
	d.pending[order.ID] = pendingOrder{
		Symbol:    symbol,
		Shares:    shares,
		Limit:     limitPrice,
		Submitted: now,
	}

	d.lastTradeTimes[symbol] = now
	d.recentTrades[symbol] = now.Unix()

	metrics.IncOrderSubmitted()
	d.log.Infof("✅ BUY %s: %.4f shares @ %s = %s (order %s)",
		symbol, shares,
		diplogic.FormatMoney(limitPrice),
		diplogic.FormatMoney(shares*limitPrice),
		order.ID)

	return nil
}
