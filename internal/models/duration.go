package models

import (
	"fmt"
	"time"
)

// FormatRetryAfter renders a remaining lock time for people: whole seconds
// under a minute, whole minutes (rounded up) under an hour, then hours with
// any leftover minutes. It never shows fractional units.
func FormatRetryAfter(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}

	seconds := int((d + time.Second - 1) / time.Second)
	if seconds < 60 {
		return plural(seconds, "second")
	}

	minutes := int((d + time.Minute - 1) / time.Minute)
	if minutes < 60 {
		return plural(minutes, "minute")
	}

	hours, rest := minutes/60, minutes%60
	if rest == 0 {
		return plural(hours, "hour")
	}
	return plural(hours, "hour") + " " + plural(rest, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
