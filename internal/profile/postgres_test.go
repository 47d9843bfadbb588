package profile_test

import (
	"context"
	"os"
	"testing"

	"github.com/conso-labs/conso-app-sub000/internal/db"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
)

// TestPostgresStore runs against a real database when
// PASSPORT_TEST_DATABASE_URL points at one.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PASSPORT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PASSPORT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, url)
	if err != nil {
		t.Fatalf("NewPostgresPool: %v", err)
	}
	t.Cleanup(pool.Close)

	s := profile.NewPostgresStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	clean := func() {
		pool.Exec(ctx, `DELETE FROM passport_profiles WHERE wallet = $1`, "0xabcdef0123456789abcdef0123456789abcdef01")
	}
	clean()
	t.Cleanup(clean)
	exerciseStore(t, s)
}
