// Package supervisor restarts a failing function on a delay, the way
// the original deployment's fork/exec wrapper restarted a crashed
// capture binary: log the failure, wait retryDelay, try again, until
// the context is canceled or the function returns nil.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Run calls fn repeatedly until it returns nil or ctx is canceled. Each
// non-nil return is logged and followed by a sleep of retryDelay before
// the next attempt. The attempt number passed to fn counts every call
// since Run began, starting at 1, and is never reset.
func Run(ctx context.Context, log zerolog.Logger, name string, retryDelay time.Duration, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	for {
		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Error().Err(err).Str("component", name).Int("attempt", attempt).
			Dur("retry_in", retryDelay).Msg("component exited, restarting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}
