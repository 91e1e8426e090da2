package webhook

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mit-27/panora-sync/internal/models"
)

// Outcome is the attempt state after one delivery try
type Outcome struct {
	Status    string
	NextRetry *time.Time
	// Delay is the wait before the re-published job is due; zero unless Status is failed
	Delay     time.Duration
	LastError *string
}

// Decide maps a delivery result to the next attempt state. tries counts the
// try just made. A maxAttempts of zero or less never gives up.
func Decide(result *DeliveryResult, tries, maxAttempts int, now time.Time) Outcome {
	if result.Error == nil && result.HTTPStatus != nil && *result.HTTPStatus >= 200 && *result.HTTPStatus < 300 {
		return Outcome{Status: models.DeliveryStatusSuccess}
	}

	var reason string
	switch {
	case result.Error != nil:
		reason = fmt.Sprintf("network error: %v", result.Error)
	case result.HTTPStatus == nil:
		reason = "no HTTP status code received"
	case *result.HTTPStatus == http.StatusTooManyRequests:
		reason = "rate limited (429)"
	default:
		reason = fmt.Sprintf("HTTP %d", *result.HTTPStatus)
	}

	if maxAttempts > 0 && tries >= maxAttempts {
		msg := fmt.Sprintf("max attempts reached: %s", reason)
		return Outcome{Status: models.DeliveryStatusDead, LastError: &msg}
	}

	delay := Backoff(tries)
	if result.HTTPStatus != nil && *result.HTTPStatus == http.StatusTooManyRequests {
		if retryAfter, ok := ParseRetryAfter(result.RetryAfter, now); ok && retryAfter > 0 {
			delay = retryAfter
			reason = fmt.Sprintf("rate limited (429), retry after %v", retryAfter)
		}
	}

	next := now.Add(delay)
	return Outcome{
		Status:    models.DeliveryStatusFailed,
		NextRetry: &next,
		Delay:     delay,
		LastError: &reason,
	}
}
