package uploader

import (
	"net/http"
	"time"

	"drive_collector/logger"

	gobreaker "github.com/sony/gobreaker/v2"
)

// HTTPClient abstracts the transport so tests can substitute it
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// newBreaker opens after failures consecutive transport errors and probes again
// after cooldown. Replies with any status count as successes here; only the
// exchange itself failing trips the breaker.
func newBreaker(failures int, cooldown time.Duration) *gobreaker.CircuitBreaker[*http.Response] {
	if failures <= 0 {
		failures = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "upload",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= uint32(failures)
			if trip {
				logger.Warnf("upload breaker opening after %d consecutive failures", counts.ConsecutiveFailures)
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l := logger.Component("breaker")
			l.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msgf("upload breaker %s: %s -> %s", name, from, to)
		},
	})
}
