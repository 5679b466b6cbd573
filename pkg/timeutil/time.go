package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() so expiry math never mixes zones
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}
