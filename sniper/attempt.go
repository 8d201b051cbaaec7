package sniper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wsp-sniper/client"
	"wsp-sniper/timing"
)

// DefaultNotOpenMarker is the text the server puts in a 500 response before
// the registration window opens.
const DefaultNotOpenMarker = "Регистрация не началась"

// Registrar sends one registration write. Transport failures are reported as
// status 0, never as an error.
type Registrar interface {
	RegisterLessons(ctx context.Context, subjectID int, lessonIDs []int) (int, string)
}

// Class is how a registration response is treated by the attempt loop.
type Class int

const (
	ClassSuccess Class = iota
	// ClassNotOpen is a 500 carrying the not-open marker. Retried without limit.
	ClassNotOpen
	// ClassOverloaded is a 504 gateway timeout. Retried without limit.
	ClassOverloaded
	// ClassError is everything else. Retried a bounded number of times.
	ClassError
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassNotOpen:
		return "not_open"
	case ClassOverloaded:
		return "overloaded"
	default:
		return "error"
	}
}

// Policy holds the retry delays of the attempt loop.
type Policy struct {
	RetryDelay       time.Duration
	OverloadDelay    time.Duration
	ErrorDelay       time.Duration
	MaxErrorAttempts int
	NotOpenMarker    string
}

// DefaultPolicy returns the delays the registration server is known to
// tolerate.
func DefaultPolicy() Policy {
	return Policy{
		RetryDelay:       500 * time.Millisecond,
		OverloadDelay:    500 * time.Millisecond,
		ErrorDelay:       500 * time.Millisecond,
		MaxErrorAttempts: 3,
		NotOpenMarker:    DefaultNotOpenMarker,
	}
}

// Classify maps a response to its retry class.
func (p Policy) Classify(status int, body string) Class {
	marker := p.NotOpenMarker
	if marker == "" {
		marker = DefaultNotOpenMarker
	}
	switch {
	case status == http.StatusOK:
		return ClassSuccess
	case status == http.StatusInternalServerError && strings.Contains(body, marker):
		return ClassNotOpen
	case status == http.StatusGatewayTimeout:
		return ClassOverloaded
	default:
		return ClassError
	}
}

// Attempter drives one subject's registration to a terminal outcome.
type Attempter struct {
	Registrar Registrar
	Policy    Policy
	Sleep     timing.SleepFunc
	Now       func() time.Time
	Log       zerolog.Logger

	// Optional.
	Safety  *SafetyManager
	Metrics *Metrics
}

// Attempt sends registration requests for subjectID until one succeeds, the
// error budget is spent, the safety breaker trips, or ctx is cancelled.
// Attempts for one subject are strictly sequential.
func (a *Attempter) Attempt(ctx context.Context, subjectID int, lessonIDs []int) Outcome {
	out := Outcome{SubjectID: subjectID, StartedAt: a.now()}
	log := a.Log.With().Int("subject", subjectID).Logger()

	finish := func(r Result, err error) Outcome {
		out.Result = r
		out.Err = err
		out.FinishedAt = a.now()
		a.Metrics.observeOutcome(r)
		return out
	}

	errorStreak := 0
	for {
		if err := ctx.Err(); err != nil {
			log.Warn().Int("attempt", out.Attempts).Msg("cancelled before completion")
			return finish(ResultCancelled, err)
		}
		if a.Safety != nil && a.Safety.IsTriggered() {
			log.Warn().Int("attempt", out.Attempts).Str("reason", a.Safety.Reason()).Msg("safety stop before request")
			return finish(ResultCancelled, ErrSafetyStop)
		}

		out.Attempts++
		log.Info().Int("attempt", out.Attempts).Msg("requesting")

		status, body := a.Registrar.RegisterLessons(ctx, subjectID, lessonIDs)
		out.StatusCode, out.Body = status, body
		class := a.Policy.Classify(status, body)
		a.Metrics.observeAttempt(class)

		// A confirmed registration stands even if the breaker tripped meanwhile.
		if class == ClassSuccess {
			log.Info().Int("attempt", out.Attempts).Str("body", client.SummarizeBody(body)).
				Msg("registered")
			return finish(ResultSuccess, nil)
		}

		if a.Safety != nil && !a.Safety.Check(status) {
			log.Error().Int("attempt", out.Attempts).Int("status", status).
				Str("reason", a.Safety.Reason()).Msg("safety stop")
			if IsBanSignal(status) {
				return finish(ResultFailed, ErrSafetyStop)
			}
			return finish(ResultCancelled, ErrSafetyStop)
		}

		var delay time.Duration
		switch class {
		case ClassNotOpen:
			errorStreak = 0
			delay = a.Policy.RetryDelay
			log.Warn().Int("attempt", out.Attempts).Dur("delay", delay).Msg("too early, retrying")

		case ClassOverloaded:
			errorStreak = 0
			delay = a.Policy.OverloadDelay
			log.Warn().Int("attempt", out.Attempts).Dur("delay", delay).Msg("gateway timeout, server busy, retrying")

		default:
			// A write aborted by cancellation shows up as status 0.
			if err := ctx.Err(); err != nil {
				return finish(ResultCancelled, err)
			}
			errorStreak++
			ev := log.Error().Int("attempt", out.Attempts).Int("status", status).
				Str("body", client.SummarizeBody(body)).
				Int("error_streak", errorStreak)
			if errorStreak >= a.Policy.MaxErrorAttempts {
				ev.Msg("failed")
				return finish(ResultFailed, nil)
			}
			delay = a.Policy.ErrorDelay
			ev.Dur("delay", delay).Msg("request failed, retrying")
		}

		if err := a.sleep(ctx, delay); err != nil {
			return finish(ResultCancelled, err)
		}
	}
}

func (a *Attempter) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep == nil {
		return timing.Sleep(ctx, d)
	}
	return a.Sleep(ctx, d)
}

func (a *Attempter) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}
