package source

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/nhle/mail-assistant/internal/apperr"
)

// Breaker guards calls to one upstream provider. Client-side failures
// (not found, bad credentials, invalid input) pass through without
// counting against the circuit.
type Breaker struct {
	cb  *gobreaker.CircuitBreaker
	log zerolog.Logger
}

// NewBreaker returns a breaker that opens after more than five
// consecutive failures, or a 60% failure ratio over at least ten calls.
func NewBreaker(name string, log zerolog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var pt *passThrough
			return err == nil || errors.As(err, &pt)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), log: log}
}

// passThrough carries an error that must not trip the circuit.
type passThrough struct {
	err error
}

func (e *passThrough) Error() string { return e.err.Error() }

// Do runs fn under the breaker. An open circuit surfaces as
// apperr.ProviderUnavailable.
func (b *Breaker) Do(op string, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			switch apperr.KindOf(err) {
			case apperr.NotFound, apperr.AuthenticationFailed, apperr.ValidationFailed:
				return nil, &passThrough{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var pt *passThrough
	if errors.As(err, &pt) {
		return pt.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.log.Warn().Str("op", op).Str("state", b.cb.State().String()).Msg("call rejected by circuit breaker")
		return apperr.Wrap(apperr.ProviderUnavailable, op, err)
	}
	return err
}

// State reports the breaker state name.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
