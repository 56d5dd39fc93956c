package service

import (
	"fmt"
	"time"
)

// timeAgo renders the elapsed time in the largest whole unit
func timeAgo(elapsed time.Duration) string {
	seconds := int(elapsed / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%d seconds ago", seconds)
	}

	minutes := seconds / 60
	if minutes < 60 {
		return plural(minutes, "minute") + " ago"
	}

	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour") + " ago"
	}

	return plural(hours/24, "day") + " ago"
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
