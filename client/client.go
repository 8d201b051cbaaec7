// Package client talks to the WSP course-registration API: login, subject and
// schedule reads with bounded retries, and registration writes that never fail
// with an error but report a status code instead.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures a Client.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// MaxRetries is the number of attempts for login and read calls.
	MaxRetries int
	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff of reads.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	Timeout            time.Duration
	Proxy              string
	Fingerprint        bool
	InsecureSkipVerify bool

	// Fingerprints supplies request headers; nil uses a default manager.
	Fingerprints *FingerprintManager
}

// Client wraps a pooled http.Client bound to one WSP account. It is safe for
// concurrent use once Login has returned.
type Client struct {
	cfg       Config
	http      *http.Client
	transport *http.Transport
	fp        *FingerprintManager
	log       zerolog.Logger

	mu     sync.RWMutex
	userID int
}

// New creates a Client. Call Close when done to release pooled connections.
func New(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Fingerprints == nil {
		cfg.Fingerprints = NewFingerprintManager()
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	// Session cookies from login are replayed on every later call.
	jar, _ := cookiejar.New(nil)

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			Jar:       jar,
		},
		transport: transport,
		fp:        cfg.Fingerprints,
		log: log.With().Str("component", "client").Logger(),
	}, nil
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// UserID returns the logged-in user ID, zero before Login.
func (c *Client) UserID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SetUserID reuses a user ID obtained elsewhere.
func (c *Client) SetUserID(id int) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *Client) endpoint(format string, args ...any) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + fmt.Sprintf(format, args...)
}

// do sends a request with fingerprint headers filled in where missing.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.fp.UserAgent())
	}
	for k, v := range c.fp.Headers() {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	return resp, nil
}

// Warmup opens a pooled connection to the API host ahead of the attack so the
// first registration write does not pay for DNS, TCP and TLS.
func (c *Client) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/"), nil)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("connection warm-up failed")
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.log.Debug().
		Int("status", resp.StatusCode).
		Str("proto", resp.Proto).
		Dur("latency", time.Since(start)).
		Msg("connection warmed up")
	return nil
}
