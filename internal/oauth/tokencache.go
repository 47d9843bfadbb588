package oauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

const (
	// ExpiryMargin is how long before its real expiry a cached token is dropped.
	ExpiryMargin = 5 * time.Minute
	// FetchTimeout bounds a shared token fetch, which outlives the caller
	// that started it.
	FetchTimeout = 30 * time.Second
)

// TokenSource returns a bearer token usable right now.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FetchFunc obtains a new token grant.
type FetchFunc func(ctx context.Context) (model.OAuthTokenSet, error)

// TokenCache holds one token and refetches it once it is within
// ExpiryMargin of expiring. Concurrent refetches are collapsed.
type TokenCache struct {
	fetch FetchFunc
	now   func() time.Time

	mu      sync.Mutex
	current model.OAuthTokenSet
	group   singleflight.Group
}

func NewTokenCache(fetch FetchFunc, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{fetch: fetch, now: now}
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.current
	if t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return "", false
	}
	if !c.now().Before(t.ExpiresAt.Add(-ExpiryMargin)) {
		return "", false
	}
	return t.AccessToken, true
}

// Token returns the cached token or fetches a new one. The fetch is shared
// by concurrent callers and detached from any one caller's cancellation;
// ctx only bounds how long this caller waits for it.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}
	ch := c.group.DoChan("token", func() (any, error) {
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		t, err := c.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.current = t
		c.mu.Unlock()
		return t.AccessToken, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token, e.g. after the provider rejected it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.current = model.OAuthTokenSet{}
	c.mu.Unlock()
}
