// Package datekey formats calendar-day keys used by all per-day logic.
// A date key is fixed at write time in the user's local calendar day and is
// compared as an opaque string afterwards; counters anchored to it are never
// actively reset, staleness is detected by key mismatch at read time.
package datekey

import "time"

// Layout is the wire format of a date key.
const Layout = "2006-01-02"

// For returns the date key of t in the given location.
func For(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(Layout)
}

// Today returns the current date key in the given location.
func Today(loc *time.Location) string {
	return For(time.Now(), loc)
}
