package diplogic

import (
	"fmt"
	"time"
)

// steepDipCutoff is the dip depth past which the cooldown is halved; deeper
// dips are allowed to re-trade sooner.
const steepDipCutoff = 0.07

// AdmissionInput carries the inputs to ShouldBuy. MinAbsoluteDip applies to
// every symbol regardless of its configured threshold, which prevents gaming
// the gate by setting an artificially low per-symbol threshold. LastTrade is
// nil when the symbol has never traded. Now is injected so the gate stays
// pure.
type AdmissionInput struct {
	DipPct         float64
	MinDip         float64
	MinAbsoluteDip float64
	PositionValue  float64
	MaxPosition    float64
	LastTrade      *time.Time
	CooldownHours  int
	Now            time.Time
}

// ShouldBuy runs the four admission checks in order, short-circuiting on the
// first failure. The returned reason is human-readable and distinct per
// check; on success it is "OK".
func ShouldBuy(in AdmissionInput) (bool, string) {
	dip := abs(in.DipPct)

	if dip < in.MinAbsoluteDip {
		return false, fmt.Sprintf("Dip %.1f%% < absolute min %.1f%%",
			in.DipPct*100, in.MinAbsoluteDip*100)
	}

	if dip < in.MinDip {
		return false, fmt.Sprintf("Dip %.1f%% < threshold %.1f%%",
			in.DipPct*100, in.MinDip*100)
	}

	if in.PositionValue >= in.MaxPosition {
		return false, fmt.Sprintf("Position $%.0f at max $%.0f",
			in.PositionValue, in.MaxPosition)
	}

	effectiveCooldown := in.CooldownHours
	if dip > steepDipCutoff {
		effectiveCooldown = in.CooldownHours / 2
		if effectiveCooldown < 1 {
			effectiveCooldown = 1
		}
	}

	if in.LastTrade != nil {
		hoursSince := in.Now.Sub(*in.LastTrade).Hours()
		if hoursSince < float64(effectiveCooldown) {
			return false, fmt.Sprintf("Cooldown: %.1fh < %dh",
				hoursSince, effectiveCooldown)
		}
	}

	return true, "OK"
}
