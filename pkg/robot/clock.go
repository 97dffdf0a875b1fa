package robot

import (
	"context"
	"errors"
	"time"
)

// Sleep pauses for d or until ctx ends, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StopAll sends a stop to every actuator. The stops run on a context that
// ignores ctx's cancellation and is bounded by timeout, so they still go out
// when the caller is shutting down. Every stop is attempted; errors are joined.
func StopAll(ctx context.Context, timeout time.Duration, actuators ...*Actuator) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	for _, a := range actuators {
		if err := a.Stop(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
