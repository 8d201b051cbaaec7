package timing

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

const (
	coarseThreshold = 2 * time.Second
	coarseMargin    = 1 * time.Second
	fineThreshold   = 100 * time.Millisecond
	pollInterval    = 50 * time.Millisecond
	spinInterval    = 1 * time.Millisecond
)

// SleepFunc blocks for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
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

// NextSleep maps the time remaining before the target to the next sleep
// duration. Zero means the target has been reached.
//
//	remaining > 2s       -> remaining - 1s
//	100ms < remaining    -> 50ms
//	0 < remaining        -> 1ms
//	otherwise            -> 0
func NextSleep(remaining time.Duration) time.Duration {
	switch {
	case remaining <= 0:
		return 0
	case remaining > coarseThreshold:
		return remaining - coarseMargin
	case remaining > fineThreshold:
		return pollInterval
	default:
		return spinInterval
	}
}

// Waiter suspends execution until a corrected clock reaches a target instant.
type Waiter struct {
	// Now returns the corrected current time.
	Now   func() time.Time
	Sleep SleepFunc
	Log   zerolog.Logger
}

// Wait blocks until Now() reaches target and returns the drift (wake time minus
// target). A target in the past is not an error: Wait logs a warning and returns
// at once. The only error is ctx's, when the caller gives up while waiting.
func (w *Waiter) Wait(ctx context.Context, target time.Time) (time.Duration, error) {
	now := w.now()
	if remaining := target.Sub(now); remaining > 0 {
		w.Log.Info().
			Str("target", target.Format("2006-01-02 15:04:05.000000 MST")).
			Str("remaining", remaining.Round(10*time.Millisecond).String()).
			Msg("waiting for target instant")
	} else {
		w.Log.Warn().
			Str("target", target.Format("2006-01-02 15:04:05.000000 MST")).
			Str("late_by", (-remaining).String()).
			Msg("target time has already passed, engaging immediately")
	}

	sleep := w.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for {
		// remaining is recomputed from the clock every pass so sleep overshoot
		// never accumulates.
		d := NextSleep(target.Sub(now))
		if d == 0 {
			return now.Sub(target), nil
		}
		if err := sleep(ctx, d); err != nil {
			return w.now().Sub(target), err
		}
		now = w.now()
	}
}

func (w *Waiter) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

// FormatDrift renders a wake drift, red when it is worse than a few milliseconds.
func FormatDrift(drift time.Duration) string {
	msg := fmt.Sprintf("Precision wake: drift = %+d µs", drift.Microseconds())
	if drift > 5*time.Millisecond || drift < -5*time.Millisecond {
		return color.RedString(msg)
	}
	return color.GreenString(msg)
}
