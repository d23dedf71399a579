package dipper

import (
	"sort"

	"bigdipper/pkg/broker"
	"bigdipper/pkg/diplogic"
)

// Missed-opportunity reporting runs only within a bounded window of a
// sustained brake, every 10th cycle, balancing operator visibility against
// log volume.
const (
	brakeReportStart = 10
	brakeReportEnd   = 30
	brakeReportEvery = 10
)

// scanDuringBrake is the lightweight read-only scan used while the brake is
// active: bars and quote only, no position or cooldown checks, no orders.
// It surfaces what the halt is costing.
func (d *Dipper) scanDuringBrake() []Opportunity {
	var missed []Opportunity

	for _, symbol := range d.cfg.Symbols {
		bars, err := d.broker.GetBars(symbol, d.cfg.LookbackDays)
		if err != nil || len(bars) < d.cfg.LookbackDays {
			continue
		}

		quote, err := d.broker.GetLatestQuote(symbol)
		if err != nil {
			continue
		}
		currentPrice := quotePrice(quote)
		if currentPrice <= 0 {
			continue
		}

		dipPct, ok := diplogic.CalculateDip(currentPrice, bars, d.cfg.LookbackDays)
		if !ok {
			continue
		}

		threshold := d.cfg.DipThreshold(symbol)
		effective := threshold
		if d.cfg.MinAbsoluteDip > effective {
			effective = d.cfg.MinAbsoluteDip
		}

		if -dipPct >= effective {
			missed = append(missed, Opportunity{
				Symbol:       symbol,
				DipPct:       dipPct,
				Threshold:    threshold,
				CurrentPrice: currentPrice,
			})
		}
	}

	return missed
}

// logBrakeStatus emits the brake lines the dashboard parses, including how
// much debt to shed before trading resumes and the best opportunities being
// missed.
func (d *Dipper) logBrakeStatus(account broker.AccountSnapshot, marginRatio float64, missed []Opportunity) {
	marginDebt := account.MarginDebt()
	targetDebt := account.Equity * d.cfg.MarginSafetyThreshold
	reductionNeeded := marginDebt - targetDebt

	d.log.Errorf("🛑 EMERGENCY BRAKE (cycle %d): Margin at %s",
		d.brakeCycles, diplogic.FormatPercent(marginRatio))
	d.log.Errorf("   Margin debt: %s / Equity: %s",
		diplogic.FormatMoney(marginDebt), diplogic.FormatMoney(account.Equity))

	if reductionNeeded > 0 {
		d.log.Errorf("   💡 Reduce debt by %s to resume trading",
			diplogic.FormatMoney(reductionNeeded))
	}

	if len(missed) == 0 {
		d.log.Info("   ✅ No qualifying opportunities at this time")
		return
	}

	sort.SliceStable(missed, func(i, j int) bool {
		return missed[i].Score() > missed[j].Score()
	})

	d.log.Warnf("⚠️  MISSING %d opportunities due to emergency brake:", len(missed))
	top := missed
	if len(top) > 5 {
		top = top[:5]
	}
	for _, opp := range top {
		d.log.Warnf("   💎 %-6s: %s dip (score: %.2fx) @ %s",
			opp.Symbol,
			diplogic.FormatPercent(opp.DipPct),
			opp.Score(),
			diplogic.FormatMoney(opp.CurrentPrice))
	}
}

// logCapitalExhaustion reports opportunities skipped after capital ran out.
// It only fires when at least one order executed first, distinguishing
// "nothing here is large enough" from "good opportunities existed but we
// ran out of room".
func (d *Dipper) logCapitalExhaustion(skipped []Opportunity) {
	d.log.Warnf("💰 CAPITAL EXHAUSTED: Skipped %d opportunities after deploying %s this cycle:",
		len(skipped), diplogic.FormatMoney(d.cycleOrderValue))

	sort.SliceStable(skipped, func(i, j int) bool {
		return skipped[i].Score() > skipped[j].Score()
	})

	top := skipped
	if len(top) > 3 {
		top = top[:3]
	}
	for _, opp := range top {
		d.log.Warnf("   ⏭️  %-6s: %s dip (score: %.2fx)",
			opp.Symbol,
			diplogic.FormatPercent(opp.DipPct),
			opp.Score())
	}

	d.log.Warnf("   💡 Consider increasing MAX_MARGIN_PCT (current: %s) or freeing up capital",
		diplogic.FormatPercent(d.cfg.MaxMarginPct))
}
