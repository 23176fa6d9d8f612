package honolulu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrDecode marks a response body that is not a JSON array. Re-fetching
// the same page will not fix it.
var ErrDecode = errors.New("decode open-data response")

// StatusError reports a non-200 response from the open-data API.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("open-data API returned HTTP %d", e.Code)
}

// retryable is true for transport errors, 429 and 5xx responses.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrDecode) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// retry calls fn, retrying retryable errors up to retries more times with
// exponential backoff between initial and max.
func retry(ctx context.Context, retries int, initial, max time.Duration, fn func() error) error {
	if retries < 0 {
		retries = 0
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initial
	eb.MaxInterval = max
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
