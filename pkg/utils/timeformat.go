package utils

import "time"

// displayLayout renders like "Feb 6, 2021, 12:00 AM" with no leading
// zero on day or hour.
const displayLayout = "Jan 2, 2006, 3:04 PM"

// FormatDisplayTime renders a stored instant as wall-clock time in the
// viewer's timezone. Instants are stored canonically; this is the only
// place they pick up a zone.
func FormatDisplayTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(displayLayout)
}
