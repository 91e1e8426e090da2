package webhook

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry delays indexed by the number of failed tries so far.
// Tries past the end of the table reuse the last delay.
var backoffDelays = []time.Duration{
	1 * time.Minute,  // after try 1
	5 * time.Minute,  // after try 2
	15 * time.Minute, // after try 3
	1 * time.Hour,    // after try 4
	3 * time.Hour,    // after try 5
	8 * time.Hour,    // after try 6
	24 * time.Hour,   // after try 7 onwards
}

// Backoff returns the wait before the next try once tries deliveries have failed
func Backoff(tries int) time.Duration {
	index := tries - 1
	if index < 0 {
		index = 0
	}
	if index >= len(backoffDelays) {
		index = len(backoffDelays) - 1
	}
	return backoffDelays[index]
}

// ParseRetryAfter accepts delay-seconds or an HTTP date
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}

	if at, err := http.ParseTime(value); err == nil {
		delay := at.Sub(now)
		if delay < 0 {
			delay = 0
		}
		return delay, true
	}
	return 0, false
}
