package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

const (
	// ConnectBonus is credited once, the first time a platform is connected.
	ConnectBonus = 100
	// EventScoreComputed is the pub/sub channel announcing score updates.
	EventScoreComputed = "EVENT_SCORE_COMPUTED"
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Publisher is the subset of a Redis client used to announce events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Service merges score results into wallet profiles.
type Service struct {
	store  Store
	events Publisher
	now    func() time.Time

	// mu serialises read-modify-write cycles within this process.
	mu sync.Mutex
}

// NewService returns a Service. events may be nil.
func NewService(store Store, events Publisher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, events: events, now: now}
}

// Get returns the profile of wallet.
func (s *Service) Get(ctx context.Context, wallet string) (*model.Profile, error) {
	return s.store.Get(ctx, wallet)
}

// ApplyScore records a fresh score for platform on wallet's profile. The
// first connection of a platform earns a badge and ConnectBonus ZAPs; every
// update earns the rounded total score in ZAPs.
func (s *Service) ApplyScore(ctx context.Context, wallet string, platform model.Platform, stats any, result model.ScoreResult) (*model.Profile, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encode %s stats: %w", platform, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(ctx, w)
	if errors.Is(err, ErrNotFound) {
		p, err = New(w), nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var earned int64
	if !p.IsConnected(platform) {
		p.ConnectedAccounts = append(p.ConnectedAccounts, platform)
		p.Badges++
		earned += ConnectBonus
	}
	earned += int64(math.Round(result.TotalScore))
	p.ZapsScore += earned
	if p.PlatformData == nil {
		p.PlatformData = map[model.Platform]model.PlatformSnapshot{}
	}
	p.PlatformData[platform] = model.PlatformSnapshot{Stats: raw, Score: result, UpdatedAt: now}
	p.UpdatedAt = now

	if err := s.store.Put(ctx, p); err != nil {
		return nil, err
	}

	s.publish(ctx, map[string]any{
		"type":        EventScoreComputed,
		"wallet":      w,
		"platform":    platform,
		"totalScore":  result.TotalScore,
		"rating":      result.Rating,
		"zapsEarned":  earned,
		"zapsBalance": p.ZapsScore,
	})
	return p, nil
}

// MarkVerified records that wallet proved ownership of account on platform.
// It credits nothing by itself.
func (s *Service) MarkVerified(ctx context.Context, wallet string, platform model.Platform, account string) (*model.Profile, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	account = normalizeAccount(account)
	if account == "" {
		return nil, &ValidationError{Msg: "account id is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(ctx, w)
	if errors.Is(err, ErrNotFound) {
		p, err = New(w), nil
	}
	if err != nil {
		return nil, err
	}
	if p.VerifiedAccounts == nil {
		p.VerifiedAccounts = map[model.Platform]string{}
	}
	p.VerifiedAccounts[platform] = account
	p.UpdatedAt = s.now().UTC()
	if err := s.store.Put(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// IsVerified reports whether wallet proved ownership of account on platform.
func (s *Service) IsVerified(ctx context.Context, wallet string, platform model.Platform, account string) (bool, error) {
	p, err := s.store.Get(ctx, wallet)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	account = normalizeAccount(account)
	return account != "" && p.VerifiedAccounts[platform] == account, nil
}

func normalizeAccount(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}

func (s *Service) publish(ctx context.Context, event map[string]any) {
	if s.events == nil {
		return
	}
	payload, _ := json.Marshal(event)
	if err := s.events.Publish(ctx, EventScoreComputed, payload).Err(); err != nil {
		slog.Warn("publish "+EventScoreComputed+" failed", "err", err)
	}
}
