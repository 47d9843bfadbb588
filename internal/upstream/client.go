// Package upstream is the HTTP client shared by every third-party API call:
// per-call timeout, per-provider rate limit, bounded retry for idempotent
// GETs and typed JSON decoding.
package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/conso-labs/conso-app-sub000/internal/metrics"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 2
	maxBodyBytes   = 8 << 20
)

// Options tunes a Client. A zero Timeout or Backoff falls back to the
// default; a zero RPS leaves the client unthrottled.
type Options struct {
	Timeout time.Duration
	Retries int
	RPS     float64
	Burst   int
	Backoff time.Duration // base delay before the first retry
	Metrics *metrics.PassportMetrics
}

// Client calls one provider's API.
type Client struct {
	provider string
	http     *http.Client
	limiter  *rate.Limiter
	retries  int
	backoff  time.Duration
	metrics  *metrics.PassportMetrics
}

// New builds a client for provider. Retries below zero disable retrying.
func New(provider string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	if opts.Burst <= 0 {
		opts.Burst = max(1, int(opts.RPS))
	}
	return &Client{
		provider: provider,
		http:     &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, opts.Burst),
		retries:  opts.Retries,
		backoff:  opts.Backoff,
		metrics:  opts.Metrics,
	}
}

// Provider returns the name used in errors and metrics.
func (c *Client) Provider() string { return c.provider }

// Response is a fully read upstream reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// GetJSON issues a GET, retrying transport errors, 429 and 5xx replies, and
// decodes a 2xx body into out. Other statuses return *ProviderAPIError.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	var resp *Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = c.send(ctx, http.MethodGet, rawURL, header, nil)
		if !c.retryable(ctx, resp, err) || attempt >= c.retries {
			break
		}
		delay := c.backoff<<attempt + rand.N(c.backoff)
		slog.Debug("upstream retry", "provider", c.provider, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

// PostJSON sends in as a JSON body and decodes the reply into out. It is
// never retried.
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.provider, err)
	}
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	resp, err := c.send(ctx, http.MethodPost, rawURL, h, body)
	if err != nil {
		return err
	}
	return c.decode(resp, out)
}

// PostForm sends a form-encoded POST and returns the raw reply whatever its
// status. It is never retried.
func (c *Client) PostForm(ctx context.Context, rawURL string, header http.Header, form url.Values) (*Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(ctx, http.MethodPost, rawURL, h, []byte(form.Encode()))
}

func (c *Client) send(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit wait: %w", c.provider, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveUpstream(c.provider, 0, time.Since(start))
		return nil, &TransportError{Provider: c.provider, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.metrics.ObserveUpstream(c.provider, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &TransportError{Provider: c.provider, Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// retryable treats a per-call timeout as transient. Only the caller's own
// cancellation or deadline stops the loop.
func (c *Client) retryable(ctx context.Context, resp *Response, err error) bool {
	if err != nil {
		var te *TransportError
		return errors.As(err, &te) && ctx.Err() == nil
	}
	return resp.Status == http.StatusTooManyRequests || resp.Status >= 500
}

func (c *Client) decode(resp *Response, out any) error {
	if resp.Status < 200 || resp.Status > 299 {
		return NewProviderAPIError(c.provider, resp.Status, resp.Body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", c.provider, ErrMalformedPayload, err)
	}
	return nil
}

// BasicAuth returns an Authorization header value for HTTP Basic credentials.
func BasicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// Bearer returns an Authorization header value for a bearer token.
func Bearer(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}
