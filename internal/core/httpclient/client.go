// Package httpclient configures the HTTP client used to fetch remote
// documents.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/observability"
)

var (
	// ErrTooLarge is returned when a fetched body exceeds the size limit.
	ErrTooLarge = errors.New("document too large")
	// ErrInvalidURL is returned for anything but an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid document url")
	// ErrHostNotAllowed is returned for hosts missing from the allowlist,
	// including redirect targets.
	ErrHostNotAllowed = errors.New("document host not allowed")
)

// Allowlist holds the hosts documents may be fetched from. An entry with a
// leading dot matches every subdomain. The zero value allows nothing.
type Allowlist map[string]struct{}

func NewAllowlist(hosts []string) Allowlist {
	a := make(Allowlist, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			a[h] = struct{}{}
		}
	}
	return a
}

// match returns the entry that allows host, if any. Ports are ignored.
func (a Allowlist) match(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return "", false
	}
	if _, ok := a[host]; ok {
		return host, true
	}
	rest := host
	for {
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			return "", false
		}
		rest = rest[i:]
		if _, ok := a[rest]; ok {
			return rest, true
		}
		rest = rest[1:]
	}
}

// NewOutbound creates a new outbound http client
func NewOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Fetch GETs rawURL and returns at most maxBytes of body. Only http and
// https URLs on allowed hosts are accepted, redirects included, and any
// non-2xx status is an error.
func Fetch(ctx context.Context, c *http.Client, allow Allowlist, rawURL string, maxBytes int64) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	upstream, ok := allow.match(u.Hostname())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	cc := *c
	cc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		if _, ok := allow.match(req.URL.Hostname()); !ok {
			return fmt.Errorf("%w: redirect to %s", ErrHostNotAllowed, req.URL.Hostname())
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	start := time.Now()
	resp, err := cc.Do(req)
	observability.ObserveUpstreamLatency(upstream, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: upstream status %d", u.Redacted(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return body, nil
}

// Fetcher binds Fetch to a client and an allowlist.
type Fetcher struct {
	Client *http.Client
	Allow  Allowlist
}

func (f Fetcher) Fetch(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	return Fetch(ctx, f.Client, f.Allow, rawURL, maxBytes)
}
