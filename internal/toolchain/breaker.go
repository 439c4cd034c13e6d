package toolchain

import (
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

const (
	breakerFailureThreshold = 3
	breakerDelay            = 30 * time.Second
)

// newBreaker trips after consecutive launch failures (missing JVM, unreadable
// jar) so requests fail fast instead of each staging a job first.
func newBreaker(observer Observer) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(breakerFailureThreshold).
		WithDelay(breakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "toolchain",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			observer.BreakerStateChanged(e.NewState.String())
		}).
		Build()
}
