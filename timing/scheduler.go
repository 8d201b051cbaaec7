// Package timing aligns local execution to a target wall-clock instant: it
// measures the local clock's offset from network time, resolves the configured
// time of day to an instant, and waits for it with a coarse-to-fine schedule.
package timing

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler ties the synchronizer, the resolver and the waiter to one clock
// offset.
type Scheduler struct {
	sync   *Synchronizer
	clock  func() time.Time
	sleep  SleepFunc
	log    zerolog.Logger
	offset atomic.Int64
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces the raw local clock.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.clock = now }
}

// WithSleep replaces the sleep used by Wait.
func WithSleep(sleep SleepFunc) SchedulerOption {
	return func(s *Scheduler) { s.sleep = sleep }
}

// NewScheduler creates a Scheduler with a zero offset.
func NewScheduler(source TimeSource, server string, log zerolog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock: time.Now,
		sleep: Sleep,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sync = &Synchronizer{Source: source, Server: server, Now: s.clock, Log: log}
	return s
}

// Sync measures and stores the clock offset. See Synchronizer.Sync.
func (s *Scheduler) Sync(ctx context.Context) time.Duration {
	offset := s.sync.Sync(ctx)
	s.offset.Store(int64(offset))
	return offset
}

// Offset returns the last measured offset, zero before Sync.
func (s *Scheduler) Offset() time.Duration {
	return time.Duration(s.offset.Load())
}

// Now returns the offset-corrected current time.
func (s *Scheduler) Now() time.Time {
	return s.clock().Add(s.Offset())
}

// ResolveTarget resolves a local time of day against today's local date.
func (s *Scheduler) ResolveTarget(localTimeOfDay string) (time.Time, error) {
	target, err := Resolve(localTimeOfDay, s.clock())
	if err != nil {
		s.log.Error().Err(err).Str("value", localTimeOfDay).Msg("invalid target time")
		return time.Time{}, err
	}
	s.log.Info().
		Str("local_target", target.Format("2006-01-02 15:04:05.000000 -0700")).
		Float64("unix", float64(target.UnixNano())/1e9).
		Msg("target resolved")
	return target, nil
}

// Wait blocks until the corrected clock reaches target and returns the drift.
func (s *Scheduler) Wait(ctx context.Context, target time.Time) (time.Duration, error) {
	w := &Waiter{Now: s.Now, Sleep: s.sleep, Log: s.log}
	return w.Wait(ctx, target)
}
