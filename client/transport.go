package client

import (
	"context"
	stdtls "crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// newTransport builds the pooled transport shared by every request of a Client.
// With fingerprint set, TLS is negotiated by uTLS with a Firefox hello and
// HTTP/1.1 only; socks5 proxies apply to both plain and uTLS dialing.
func newTransport(cfg Config) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &stdtls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
		ForceAttemptHTTP2:   !cfg.Fingerprint,
	}

	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		switch u.Scheme {
		case "socks5", "socks5h":
			dial, err := socksDialer(u, dialer)
			if err != nil {
				return nil, err
			}
			t.DialContext = dial
		case "http", "https":
			t.Proxy = http.ProxyURL(u)
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	if cfg.Fingerprint {
		t.DialTLSContext = fingerprintedDialer(dialFunc(t.DialContext), cfg.InsecureSkipVerify)
	}

	return t, nil
}

func socksDialer(u *url.URL, forward *net.Dialer) (dialFunc, error) {
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{
			User:     u.User.Username(),
			Password: password,
		}
	}
	d, err := proxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

func fingerprintedDialer(dial dialFunc, insecure bool) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		uConn := utls.UClient(conn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: insecure,
			NextProtos:         []string{"http/1.1"},
		}, utls.HelloCustom)

		spec, err := utls.UTLSIdToSpec(utls.HelloFirefox_Auto)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to get utls spec: %w", err)
		}

		// http.Transport cannot speak h2 over a custom TLS conn, so ALPN is pinned
		// to http/1.1.
		for i, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
				spec.Extensions[i] = alpn
			}
		}

		if err := uConn.ApplyPreset(&spec); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply preset: %w", err)
		}

		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		if err := uConn.Handshake(); err != nil {
			conn.Close()
			return nil, err
		}
		_ = conn.SetDeadline(time.Time{})

		return uConn, nil
	}
}
