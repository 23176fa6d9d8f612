package honolulu

import (
	"time"

	"github.com/EmpoweredVote/sr311/internal/logging"
)

const component = "honolulu"

func logRequest(method, url string, offset int) {
	l := logging.Component(component)
	l.Info().Str("method", method).Str("url", url).Int("offset", offset).Msg("request")
}

func logResponse(statusCode int, d time.Duration, count int) {
	l := logging.Component(component)
	l.Info().
		Int("status", statusCode).
		Int64("duration_ms", d.Milliseconds()).
		Int("results", count).
		Msg("response")
}

func logError(operation string, err error) {
	l := logging.Component(component)
	l.Error().Str("op", operation).Err(err).Msg("request failed")
}
