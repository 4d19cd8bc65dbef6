// Package transport is the HTTP client for the resource web service. It
// fetches schema synopses, record pages, and the resource index, and hides
// authentication and retry behavior from the layers above.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tabfetch/tabfetch/pkg/logger"
	"github.com/tabfetch/tabfetch/pkg/query"
	"github.com/tabfetch/tabfetch/pkg/taberrors"
)

// AuthMode selects how the service key travels with each request.
type AuthMode string

const (
	// AuthQueryKey appends the key as the ws_key query parameter.
	AuthQueryKey AuthMode = "query"
	// AuthBasic sends the key as the basic-auth username with an empty
	// password.
	AuthBasic AuthMode = "basic"
)

// Config configures the service client.
type Config struct {
	// Endpoint is the service base URL, up to and including the API root.
	Endpoint string
	// Key authenticates every request.
	Key      string
	AuthMode AuthMode
	// Language restricts translated fields to one language id; zero fetches
	// all languages.
	Language int
	// Timeout bounds a single request.
	Timeout time.Duration
	// Retries is the number of attempts after the first for transient
	// failures.
	Retries int
	// RetryBackoff is the initial delay between attempts, doubled each
	// retry.
	RetryBackoff time.Duration
	UserAgent    string
}

// DefaultConfig returns client defaults suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		AuthMode:     AuthQueryKey,
		Timeout:      30 * time.Second,
		Retries:      2,
		RetryBackoff: 500 * time.Millisecond,
		UserAgent:    "tabfetch",
	}
}

// Client talks to one service endpoint. It is safe for concurrent use.
type Client struct {
	cfg  Config
	base *url.URL
	hc   *http.Client
	log  *zap.Logger
}

// New validates the endpoint and builds a client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "service endpoint is required")
	}
	base, err := url.Parse(cfg.Endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "service endpoint is not an absolute URL").
			WithDetail("endpoint", cfg.Endpoint)
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = AuthQueryKey
	}
	if cfg.AuthMode != AuthQueryKey && cfg.AuthMode != AuthBasic {
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "unknown auth mode").
			WithDetail("auth_mode", string(cfg.AuthMode))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Client{
		cfg:  cfg,
		base: base,
		hc:   &http.Client{Transport: transport, Timeout: cfg.Timeout},
		log:  logger.Get().Named("transport"),
	}, nil
}

// FetchSynopsis retrieves the blank schema synopsis for a resource.
func (c *Client) FetchSynopsis(ctx context.Context, resource string) ([]byte, error) {
	return c.get(ctx, resource, []query.Param{{Key: "schema", Value: "synopsis"}})
}

// FetchPage retrieves one window of records for a resource. The
// descriptor's own limit is already folded into the window by the caller.
func (c *Client) FetchPage(ctx context.Context, resource string, params []query.Param) ([]byte, error) {
	return c.get(ctx, resource, params)
}

// FetchIndex retrieves the API index document listing available resources.
func (c *Client) FetchIndex(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "", nil)
}

func (c *Client) get(ctx context.Context, resource string, params []query.Param) ([]byte, error) {
	u := *c.base
	if resource != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + url.PathEscape(resource)
	}

	vals := url.Values{}
	for _, p := range params {
		vals.Set(p.Key, p.Value)
	}
	if c.cfg.AuthMode == AuthQueryKey {
		vals.Set("ws_key", c.cfg.Key)
	}
	if c.cfg.Language > 0 && resource != "" {
		vals.Set("language", strconv.Itoa(c.cfg.Language))
	}
	u.RawQuery = vals.Encode()

	var lastErr error
	backoff := c.cfg.RetryBackoff
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying request",
				zap.String("resource", resource),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, taberrors.Wrap(ctx.Err(), taberrors.ErrorTypeTransport, "request canceled")
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := c.doOnce(ctx, &u, resource)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !taberrors.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, u *url.URL, resource string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeInternal, "build request")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.AuthMode == AuthBasic {
		req.SetBasicAuth(c.cfg.Key, "")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeTransport, "request failed").
			WithDetail("resource", resource)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taberrors.Wrap(err, taberrors.ErrorTypeTransport, "read response body").
			WithDetail("resource", resource)
	}

	c.log.Debug("request complete",
		zap.String("resource", resource),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Auth failures are permanent, retrying cannot help.
		return nil, taberrors.New(taberrors.ErrorTypeConfig, "service rejected credentials").
			WithDetail("status", resp.StatusCode).
			WithDetail("resource", resource)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, taberrors.New(taberrors.ErrorTypeTransport, "transient service error").
			WithDetail("status", resp.StatusCode).
			WithDetail("resource", resource)
	default:
		return nil, taberrors.New(taberrors.ErrorTypeQuery, fmt.Sprintf("service returned %s", resp.Status)).
			WithDetail("status", resp.StatusCode).
			WithDetail("resource", resource).
			WithDetail("body", truncate(body, 512))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
