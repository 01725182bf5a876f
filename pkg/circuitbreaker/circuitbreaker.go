package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Config struct {
	Name                string
	MaxHalfOpenRequests uint32
	Interval            time.Duration // counts reset period while closed
	OpenTimeout         time.Duration // time spent open before probing
	ConsecutiveFailures uint32        // failures in a row that trip the breaker
}

func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxHalfOpenRequests: 1,
		Interval:            time.Minute,
		OpenTimeout:         10 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// New returns a breaker that trips after cfg.ConsecutiveFailures and logs state changes.
func New[T any](cfg Config, log *zap.Logger) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}
