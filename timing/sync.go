package timing

import (
	"context"
	"time"

	"github.com/beevik/ntp"
	"github.com/rs/zerolog"
)

// DefaultNTPServer is queried when no server is configured.
const DefaultNTPServer = "pool.ntp.org"

// TimeSource reports a trusted network time.
type TimeSource interface {
	Query(ctx context.Context, server string) (time.Time, error)
}

// NTPSource queries an NTP server once per call.
type NTPSource struct {
	Timeout time.Duration
	Version int
}

// Query returns the server's estimate of the current time. The estimate is the
// local clock shifted by the round-trip compensated NTP clock offset.
func (s NTPSource) Query(ctx context.Context, server string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	opts := ntp.QueryOptions{Timeout: s.Timeout, Version: s.Version}
	if opts.Version == 0 {
		opts.Version = 3
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); opts.Timeout == 0 || left < opts.Timeout {
			opts.Timeout = left
		}
	}

	resp, err := ntp.QueryWithOptions(server, opts)
	if err != nil {
		return time.Time{}, err
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(resp.ClockOffset), nil
}

// Synchronizer computes the offset between the local clock and a TimeSource.
type Synchronizer struct {
	Source TimeSource
	Server string
	// Now is the raw local clock.
	Now func() time.Time
	Log zerolog.Logger
}

// Sync queries the source once and returns remote minus local time. Any failure
// yields a zero offset and a warning; it is never fatal.
func (s *Synchronizer) Sync(ctx context.Context) time.Duration {
	server := s.Server
	if server == "" {
		server = DefaultNTPServer
	}

	remote, err := s.Source.Query(ctx, server)
	local := s.now()
	if err != nil {
		s.Log.Warn().Err(err).Str("server", server).Msg("NTP sync failed, using system time")
		return 0
	}

	offset := remote.Sub(local)
	s.Log.Info().
		Str("server", server).
		Str("offset", offset.String()).
		Float64("offset_seconds", offset.Seconds()).
		Msg("NTP sync successful")
	return offset
}

func (s *Synchronizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
