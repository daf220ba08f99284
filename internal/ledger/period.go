package ledger

import "time"

// periodStart returns the most recent period boundary at or before now.
// Daily plans reset at local midnight. Monthly plans reset on the anchor
// day-of-month, clamped to the last day of months too short to contain it;
// an anchor day that has not yet occurred this month resolves against last
// month's anniversary, never a future date.
func periodStart(now time.Time, period Period, anchor int, loc *time.Location) time.Time {
	local := now.In(loc)
	if period != PeriodMonthly {
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
	if anchor < 1 {
		anchor = 1
	}
	candidate := anniversary(local.Year(), local.Month(), anchor, loc)
	if candidate.After(local) {
		previous := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
		candidate = anniversary(previous.Year(), previous.Month(), anchor, loc)
	}
	return candidate
}

func anniversary(year int, month time.Month, anchor int, loc *time.Location) time.Time {
	if last := daysIn(year, month); anchor > last {
		anchor = last
	}
	return time.Date(year, month, anchor, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
