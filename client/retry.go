package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff returns the read retry schedule: exponential from RetryBaseDelay,
// doubling, capped at RetryMaxDelay, MaxRetries attempts in total. It stops
// early when ctx ends.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.cfg.RetryBaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = c.cfg.RetryMaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.cfg.MaxRetries-1)), ctx)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. The last error is returned.
func (c *Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case !retryable(err):
			return backoff.Permanent(err)
		}
		return err
	}, c.newBackOff(ctx), func(err error, d time.Duration) {
		c.log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", d).
			Msg("request failed, retrying")
	})
}
