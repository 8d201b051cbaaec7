package client

import (
	"context"
	"crypto/tls"
	"net/http/httptrace"
	"time"
)

// RequestTrace holds connection timings of one request, relative to its start.
type RequestTrace struct {
	start time.Time

	DNSDone              time.Duration `json:"dns_done"`
	ConnectDone          time.Duration `json:"connect_done"`
	TLSHandshakeDone     time.Duration `json:"tls_done"`
	WroteRequest         time.Duration `json:"wrote_request"`
	GotFirstResponseByte time.Duration `json:"ttfb"`
	TotalDuration        time.Duration `json:"total_duration"`
	ConnectionReused     bool          `json:"connection_reused"`
}

// withTrace attaches a ClientTrace that fills t.
func withTrace(ctx context.Context, t *RequestTrace) context.Context {
	since := func() time.Duration { return time.Since(t.start) }
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		DNSDone:              func(httptrace.DNSDoneInfo) { t.DNSDone = since() },
		ConnectDone:          func(string, string, error) { t.ConnectDone = since() },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.TLSHandshakeDone = since() },
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.WroteRequest = since() },
		GotFirstResponseByte: func() { t.GotFirstResponseByte = since() },
		GotConn:              func(info httptrace.GotConnInfo) { t.ConnectionReused = info.Reused },
	})
}

func (t *RequestTrace) begin()  { t.start = time.Now() }
func (t *RequestTrace) finish() { t.TotalDuration = time.Since(t.start) }
