// Package sniper fires registration writes for every subject of a plan at the
// target instant and drives each subject to a terminal outcome.
package sniper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/time/rate"

	"wsp-sniper/plan"
)

// Orchestrator launches one attempt loop per subject, staggered by
// RequestDelay, and joins them all.
type Orchestrator struct {
	Attempter    *Attempter
	RequestDelay time.Duration
	// Timeout bounds the whole attack. Zero means no bound.
	Timeout time.Duration
	// SafetyStop cancels every loop when a ban signal is seen.
	SafetyStop bool
	// OnSafetyStop, if set, receives the breaker's reason when it trips.
	OnSafetyStop func(reason string)
	Log          zerolog.Logger
}

// Launch runs the attack for p and returns every subject's outcome. Subjects
// are started in plan order. A panic in one loop becomes a ResultFaulted
// outcome for that subject only. Subjects never started because ctx ended are
// reported as cancelled with zero attempts.
func (o *Orchestrator) Launch(ctx context.Context, p *plan.Plan) map[int]Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if o.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, o.Timeout)
		defer cancelTimeout()
	}

	att := *o.Attempter
	if o.SafetyStop {
		att.Safety = NewSafetyManager(o.Log, func(reason string) {
			o.Log.Error().Str("reason", reason).Msg("stopping all subjects")
			cancel()
			if o.OnSafetyStop != nil {
				o.OnSafetyStop(reason)
			}
		})
	}

	limit := rate.Inf
	if o.RequestDelay > 0 {
		limit = rate.Every(o.RequestDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	entries := p.Entries()
	o.Log.Info().
		Int("subjects", len(entries)).
		Dur("request_delay", o.RequestDelay).
		Msg("launching attack")

	var (
		mu      sync.Mutex
		results = make(map[int]Outcome, len(entries))
		wg      conc.WaitGroup
	)
	record := func(out Outcome) {
		mu.Lock()
		results[out.SubjectID] = out
		mu.Unlock()
	}

	for _, e := range entries {
		if err := limiter.Wait(ctx); err != nil {
			now := att.now()
			record(Outcome{SubjectID: e.SubjectID, Result: ResultCancelled, Err: err, StartedAt: now, FinishedAt: now})
			att.Metrics.observeOutcome(ResultCancelled)
			continue
		}
		wg.Go(func() {
			record(o.run(ctx, &att, e))
		})
	}
	wg.Wait()

	if att.Safety != nil && att.Safety.IsTriggered() {
		o.Log.Warn().
			Str("reason", att.Safety.Reason()).
			Time("tripped_at", att.Safety.TriggeredAt()).
			Msg("attack stopped by safety breaker")
	}
	o.logSummary(entries, results)
	return results
}

func (o *Orchestrator) run(ctx context.Context, att *Attempter, e plan.Entry) Outcome {
	startedAt := att.now()
	var out Outcome
	var pc panics.Catcher
	pc.Try(func() {
		out = att.Attempt(ctx, e.SubjectID, e.LessonIDs)
	})
	if r := pc.Recovered(); r != nil {
		o.Log.Error().
			Int("subject", e.SubjectID).
			Interface("panic", r.Value).
			Str("stack", string(r.Stack)).
			Msg("attempt loop panicked")
		att.Metrics.observeOutcome(ResultFaulted)
		return Outcome{
			SubjectID:  e.SubjectID,
			Result:     ResultFaulted,
			Err:        r.AsError(),
			StartedAt:  startedAt,
			FinishedAt: att.now(),
		}
	}
	return out
}

func (o *Orchestrator) logSummary(entries []plan.Entry, results map[int]Outcome) {
	counts := map[Result]int{}
	for _, e := range entries {
		counts[results[e.SubjectID].Result]++
	}
	o.Log.Info().
		Int("success", counts[ResultSuccess]).
		Int("failed", counts[ResultFailed]).
		Int("cancelled", counts[ResultCancelled]).
		Int("faulted", counts[ResultFaulted]).
		Msg("attack finished")
}
