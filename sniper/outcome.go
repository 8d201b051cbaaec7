package sniper

import (
	"errors"
	"time"
)

// ErrSafetyStop is the error of a subject whose response tripped the safety
// breaker.
var ErrSafetyStop = errors.New("safety stop: ban signal received")

// Result is the terminal state of one subject's attempt loop.
type Result int

const (
	ResultSuccess Result = iota + 1
	ResultFailed
	ResultCancelled
	ResultFaulted
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	case ResultCancelled:
		return "cancelled"
	case ResultFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// MarshalText encodes the result by name.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Outcome is what an attempt loop ended with. StatusCode and Body are those of
// the last response.
type Outcome struct {
	SubjectID  int
	Result     Result
	StatusCode int
	Body       string
	Attempts   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the loop ran for.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Succeeded reports whether the subject was registered.
func (o Outcome) Succeeded() bool {
	return o.Result == ResultSuccess
}
