package util

import "time"

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(loc *time.Location, t time.Time) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// SameLocalDay reports whether a and b fall on the same calendar date
// in loc.
func SameLocalDay(loc *time.Location, a, b time.Time) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// LaterLocalDay reports whether b is on a calendar date after a in loc.
func LaterLocalDay(loc *time.Location, a, b time.Time) bool {
	return StartOfDay(loc, b).After(StartOfDay(loc, a))
}
