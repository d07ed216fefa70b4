package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a guarded call exceeds its deadline.
var ErrTimeout = errors.New("resilience: call timed out")

// Guard runs calls to a downstream dependency behind a breaker and a per-call
// deadline. Calls are never retried.
type Guard struct {
	Breaker *Breaker
	Timeout time.Duration
	// Expected classifies errors that are normal answers (for example "not
	// found") and must not count as dependency failures.
	Expected func(error) bool
}

// Do executes fn. A nil Guard runs fn directly.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	if g.Breaker != nil && !g.Breaker.Allow(ctx) {
		return ErrOpenCircuit
	}
	callCtx := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = errors.Join(ErrTimeout, err)
	}
	if g.Breaker != nil {
		g.Breaker.Report(ctx, err == nil || (g.Expected != nil && g.Expected(err)))
	}
	return err
}

// IsUnavailable reports whether err came from the guard itself rather than the dependency's answer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrOpenCircuit) || errors.Is(err, ErrTimeout)
}
