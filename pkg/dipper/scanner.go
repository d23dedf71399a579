package dipper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/diplogic"
)

// volatilityBaseline is the "normal" average daily range a symbol's recent
// range is measured against.
const volatilityBaseline = 0.02

// Opportunity is the ephemeral per-symbol scan result. It lives only within
// one cycle and is never persisted.
type Opportunity struct {
	Symbol               string
	DipPct               float64
	Threshold            float64
	CurrentPrice         float64
	VolatilityFactor     float64
	IntradayMultiplier   float64
	IntradayDropPct      float64
	HasIntradayDrop      bool
	CurrentPositionValue float64
	MaxPositionValue     float64
}

// Score is the opportunity's dip depth relative to its own threshold.
func (o Opportunity) Score() float64 {
	return diplogic.OpportunityScore(o.DipPct, o.Threshold)
}

// scanWatchlist runs the two scan passes: collect qualifying opportunities
// across the watchlist, then prioritize them by opportunity score so the
// best relative dips execute first when capital is scarce. Ties keep
// watchlist order.
func (d *Dipper) scanWatchlist(equity float64, positionMap map[string]float64) []Opportunity {
	var opportunities []Opportunity
	largestSymbol, largestDip := "", 0.0

	for _, symbol := range d.cfg.Symbols {
		opp, err := d.scanSymbol(symbol, equity, positionMap)
		if err != nil {
			d.log.Errorf("%s: Scan error - %v", symbol, err)
			continue
		}
		if opp == nil {
			continue
		}
		opportunities = append(opportunities, *opp)
		if opp.DipPct < largestDip {
			largestSymbol, largestDip = opp.Symbol, opp.DipPct
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].Score() > opportunities[j].Score()
	})

	summary := fmt.Sprintf("🔍 Scan complete: %d opportunities found", len(opportunities))
	if largestSymbol != "" {
		summary += fmt.Sprintf(" | Largest dip: %s %s",
			largestSymbol, diplogic.FormatPercent(largestDip))
	}
	if len(opportunities) > 0 {
		top := opportunities
		if len(top) > 3 {
			top = top[:3]
		}
		names := make([]string, len(top))
		for i, o := range top {
			names[i] = fmt.Sprintf("%s(%.2fx)", o.Symbol, o.Score())
		}
		summary += " | Priority: " + strings.Join(names, ", ")
	}
	d.log.Info(summary)

	return opportunities
}

// scanSymbol evaluates one symbol. A nil, nil return means "no opportunity
// here", which is the normal case; an error means data was unavailable and
// the symbol is skipped for this cycle only.
func (d *Dipper) scanSymbol(symbol string, equity float64, positionMap map[string]float64) (*Opportunity, error) {
	if d.cfg.IsCollateral(symbol) {
		return nil, nil
	}

	bars, err := d.broker.GetBars(symbol, d.cfg.LookbackDays+1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars available")
	}

	// Current price from the latest quote, falling back to the last daily
	// close when no quote is available.
	currentPrice := bars[len(bars)-1].Close
	if quote, err := d.broker.GetLatestQuote(symbol); err == nil {
		if price := quotePrice(quote); price > 0 {
			currentPrice = price
		}
	}

	volatility := volatilityFactor(bars, d.cfg.LookbackDays)

	dipPct, ok := diplogic.CalculateDip(currentPrice, bars, d.cfg.LookbackDays)
	if !ok {
		return nil, nil
	}

	// Intraday boost applies only to configured volatile tickers.
	intradayMultiplier := 1.0
	intradayDrop, hasDrop := 0.0, false
	if d.cfg.IsVolatile(symbol) {
		intradayDrop, hasDrop = diplogic.CalculateIntradayDrop(bars)
		if hasDrop && -intradayDrop >= d.cfg.IntradayDropThreshold {
			intradayMultiplier = d.cfg.IntradayMultiplier
		}
	}

	threshold := d.cfg.DipThreshold(symbol)
	if -dipPct >= threshold {
		d.log.Debugf("%s: %s from %dd high ✓ (threshold: %s)",
			symbol, diplogic.FormatPercent(dipPct), d.cfg.LookbackDays,
			diplogic.FormatPercent(-threshold))
	} else {
		d.log.Debugf("%s: %s from %dd high (need %s)",
			symbol, diplogic.FormatPercent(dipPct), d.cfg.LookbackDays,
			diplogic.FormatPercent(-threshold))
	}

	// Fast pre-check against the epoch-seconds cooldown cache before the
	// full admission gate.
	if last, ok := d.recentTrades[symbol]; ok {
		if d.now().Unix()-last < int64(d.cfg.CooldownHours)*3600 {
			d.log.Debugf("%s: Cooldown active (local cache)", symbol)
			return nil, nil
		}
	}

	currentPositionValue := positionMap[symbol]
	maxPositionValue := equity * d.cfg.MaxPositionPct

	var lastTrade *time.Time
	if t, ok := d.lastTradeTimes[symbol]; ok {
		lastTrade = &t
	}

	allowed, reason := diplogic.ShouldBuy(diplogic.AdmissionInput{
		DipPct:         dipPct,
		MinDip:         threshold,
		MinAbsoluteDip: d.cfg.MinAbsoluteDip,
		PositionValue:  currentPositionValue,
		MaxPosition:    maxPositionValue,
		LastTrade:      lastTrade,
		CooldownHours:  d.cfg.CooldownHours,
		Now:            d.now(),
	})
	if !allowed {
		d.log.Debugf("%s: %s", symbol, reason)
		return nil, nil
	}

	return &Opportunity{
		Symbol:               symbol,
		DipPct:               dipPct,
		Threshold:            threshold,
		CurrentPrice:         currentPrice,
		VolatilityFactor:     volatility,
		IntradayMultiplier:   intradayMultiplier,
		IntradayDropPct:      intradayDrop,
		HasIntradayDrop:      hasDrop,
		CurrentPositionValue: currentPositionValue,
		MaxPositionValue:     maxPositionValue,
	}, nil
}

// volatilityFactor measures a symbol's recent average daily range against
// the 2% baseline. The newest bar is excluded so a partial session does not
// skew the average; an empty window defaults to the baseline.
func volatilityFactor(bars []broker.Bar, lookback int) float64 {
	if len(bars) < 2 {
		return 1.0
	}

	window := bars[:len(bars)-1]
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}

	sum, n := 0.0, 0
	for _, bar := range window {
		if bar.Close > 0 {
			sum += (bar.High - bar.Low) / bar.Close
			n++
		}
	}

	avgRange := volatilityBaseline
	if n > 0 {
		avgRange = sum / float64(n)
	}
	return avgRange / volatilityBaseline
}

// quotePrice derives the scan price from a quote, preferring the bid as the
// conservative side for buy decisions.
func quotePrice(q broker.Quote) float64 {
	if q.BidPrice > 0 {
		return q.BidPrice
	}
	return q.AskPrice
}
