package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PendingTTL bounds how long a flow waits for its callback.
const PendingTTL = 10 * time.Minute

// PendingStore keeps flows between authorize and callback. Take deletes
// the flow it returns, so a flow is consumed at most once.
type PendingStore interface {
	Save(ctx context.Context, flow Flow, ttl time.Duration) error
	Take(ctx context.Context, id string) (Flow, error)
}

// ── Memory ───────────────────────────────────────────────────────────────

type pendingEntry struct {
	flow      Flow
	expiresAt time.Time
}

// MemoryPendingStore is a process-local PendingStore.
type MemoryPendingStore struct {
	mu    sync.Mutex
	items map[string]pendingEntry
	now   func() time.Time
}

func NewMemoryPendingStore(now func() time.Time) *MemoryPendingStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryPendingStore{items: make(map[string]pendingEntry), now: now}
}

func (s *MemoryPendingStore) Save(_ context.Context, flow Flow, ttl time.Duration) error {
	if flow.ID == "" {
		return fmt.Errorf("pending flow without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[flow.ID] = pendingEntry{flow: flow, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryPendingStore) Take(_ context.Context, id string) (Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return Flow{}, ErrMissingPKCE
	}
	delete(s.items, id)
	if !s.now().Before(e.expiresAt) {
		return Flow{}, ErrMissingPKCE
	}
	return e.flow, nil
}

// Sweep drops expired flows and returns how many were removed.
func (s *MemoryPendingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, e := range s.items {
		if !now.Before(e.expiresAt) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored flows, expired or not.
func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ── Redis ────────────────────────────────────────────────────────────────

// RedisPendingStore keeps flows in Redis with a TTL; expiry is Redis's job.
type RedisPendingStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisPendingStore(rdb redis.Cmdable) *RedisPendingStore {
	return &RedisPendingStore{rdb: rdb, prefix: "oauth:flow:"}
}

func (s *RedisPendingStore) Save(ctx context.Context, flow Flow, ttl time.Duration) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+flow.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set flow: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Take(ctx context.Context, id string) (Flow, error) {
	data, err := s.rdb.GetDel(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Flow{}, ErrMissingPKCE
	}
	if err != nil {
		return Flow{}, fmt.Errorf("redis getdel flow: %w", err)
	}
	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return Flow{}, fmt.Errorf("unmarshal flow: %w", err)
	}
	return flow, nil
}
