// Package fetcher retrieves public statistics from each platform's API and
// normalises them into model stats snapshots.
//
// Every GetStats returns (nil, nil) when the identity does not exist
// upstream. Any other non-2xx reply aborts the fetch with an
// *upstream.ProviderAPIError.
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

const (
	activityWindow = 30 * 24 * time.Hour
	sampleCap      = 100
)

// ErrInvalidIdentifier is returned when an identifier cannot name any
// account on the platform.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// AppToken is an app-level bearer token source (client credentials).
type AppToken interface {
	Token(ctx context.Context) (string, error)
	ClientID() string
	Invalidate()
}

func inWindow(t, now time.Time) bool {
	return !t.IsZero() && !t.After(now) && now.Sub(t) <= activityWindow
}

// getWithAppToken issues an authenticated GET, dropping the cached token and
// retrying once when the provider answers 401.
func getWithAppToken(ctx context.Context, hc *upstream.Client, tokens AppToken, rawURL string, header http.Header, out any) error {
	for attempt := 0; ; attempt++ {
		tok, err := tokens.Token(ctx)
		if err != nil {
			return err
		}
		h := header.Clone()
		if h == nil {
			h = http.Header{}
		}
		h.Set("Authorization", upstream.Bearer(tok))
		err = hc.GetJSON(ctx, rawURL, h, out)
		if upstream.StatusOf(err) == http.StatusUnauthorized && attempt == 0 {
			tokens.Invalidate()
			continue
		}
		return err
	}
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
