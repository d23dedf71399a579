package dipper

import (
	"time"

	"bigdipper/pkg/broker"
)

type session int

const (
	sessionRegular session = iota
	sessionExtended
	sessionClosed
)

// eastern is the exchange timezone; extended-hours windows are defined in ET.
var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

// marketSession classifies the current trading session. The brokerage clock
// decides regular hours; outside of them, pre-market (4:00-9:30 ET) and
// after-hours (16:00-20:00 ET) count as extended, everything else is closed.
func marketSession(clock broker.Clock, now time.Time) (session, string) {
	if clock.IsOpen {
		return sessionRegular, "Regular Hours"
	}

	et := now.In(eastern)
	minutes := et.Hour()*60 + et.Minute()

	const (
		preMarketOpen = 4 * 60
		regularOpen   = 9*60 + 30
		regularClose  = 16 * 60
		afterHoursEnd = 20 * 60
	)

	switch {
	case minutes >= preMarketOpen && minutes < regularOpen:
		return sessionExtended, "Pre-Market"
	case minutes >= regularClose && minutes < afterHoursEnd:
		return sessionExtended, "After-Hours"
	default:
		return sessionClosed, "Closed"
	}
}
