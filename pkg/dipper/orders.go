package dipper

import (
	"time"

	"bigdipper/pkg/metrics"
)

// pendingOrder is a locally-tracked submission. The brokerage's open-order
// set is authoritative; this record exists only to enforce the age timeout
// and to log completions.
type pendingOrder struct {
	Symbol    string
	Shares    float64
	Limit     float64
	Submitted time.Time
}

// managePendingOrders reconciles the local pending map against the
// brokerage: tracked orders past the timeout are cancelled, and tracked
// orders no longer open are retired as completed. This is what keeps the
// in-memory map from drifting from brokerage truth indefinitely.
func (d *Dipper) managePendingOrders() {
	openOrders, err := d.broker.OpenOrders()
	if err != nil {
		d.log.Errorf("Order management error: %v", err)
		return
	}

	openIDs := make(map[string]bool, len(openOrders))
	for _, order := range openOrders {
		openIDs[order.ID] = true

		tracked, ok := d.pending[order.ID]
		if !ok {
			continue
		}

		// The brokerage's own submission timestamp is authoritative when it
		// reports one; the local stamp covers responses that omit it.
		submitted := tracked.Submitted
		if !order.SubmittedAt.IsZero() {
			submitted = order.SubmittedAt
		}
		age := d.now().Sub(submitted)
		if age <= d.cfg.OrderTimeout {
			continue
		}

		// Drop the local record even when the cancel fails: the broker's
		// state, not this cache, is authoritative going forward.
		if err := d.broker.CancelOrder(order.ID); err != nil {
			d.log.Errorf("Failed to cancel order %s: %v", order.ID, err)
			metrics.IncOrderCancelFailed()
		} else {
			d.log.Warnf("⏱️  Cancelled %s order %s after %.0f minutes",
				order.Symbol, order.ID, age.Minutes())
			metrics.IncOrderCancelled()
		}
		delete(d.pending, order.ID)
	}

	for id, tracked := range d.pending {
		if openIDs[id] {
			continue
		}
		d.log.Infof("✅ Order completed: %s %s", tracked.Symbol, id)
		metrics.IncOrderCompleted()
		delete(d.pending, id)
	}
}
