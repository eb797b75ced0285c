package circuitbreaker

import (
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	// MaxNumOfFailingRequests is the minimum number of requests observed
	// before the breaker is allowed to trip.
	MaxNumOfFailingRequests = 20
	// FailingRatio is the failing/total ratio at which the breaker trips.
	FailingRatio = 0.6
)

// NewCircuitBreaker is a factory function returning a *gobreaker.CircuitBreaker
// that opens once the failing ratio of the observed requests has met
// FailingRatio, and logs every state transition.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return int(counts.Requests) > MaxNumOfFailingRequests && ratio >= FailingRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch {
			case to == gobreaker.StateOpen:
				log.Warnf("%s seems down, stop allowing requests", name)
			case from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen:
				log.Debugf("checking %s status", name)
			case from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed:
				log.Debugf("%s seems ok, restart allowing requests", name)
			}
		},
	})
}
