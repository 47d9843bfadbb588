package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

var refNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return refNow }

func ago(d time.Duration) string { return refNow.Add(-d).Format(time.RFC3339) }

const day = 24 * time.Hour

func newUpstream(name string) *upstream.Client {
	return upstream.New(name, upstream.Options{Retries: 0, Backoff: time.Millisecond})
}

// serve routes exact paths to canned JSON bodies; unknown paths answer 404.
func serve(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func jsonBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"nope"}`, code)
	}
}

type fakeAppToken struct {
	id          string
	token       string
	invalidated atomic.Int32
}

func (f *fakeAppToken) Token(context.Context) (string, error) { return f.token, nil }
func (f *fakeAppToken) ClientID() string                      { return f.id }
func (f *fakeAppToken) Invalidate()                           { f.invalidated.Add(1) }
