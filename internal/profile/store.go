// Package profile keeps the per-wallet passport: connected platforms, their
// latest stats and scores, and the accumulated badges and ZAPs.
package profile

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

var (
	// ErrNotFound is returned when no profile exists for a wallet.
	ErrNotFound = errors.New("profile not found")
	// ErrInvalidWallet is returned for an empty or malformed wallet address.
	ErrInvalidWallet = errors.New("invalid wallet address")
	// ErrNotOwner is returned when a wallet has no proof that it owns the
	// account it would be credited for.
	ErrNotOwner = errors.New("account ownership not proven for this wallet")
)

var walletPattern = regexp.MustCompile(`^[a-z0-9:_.-]{3,128}$`)

// Store persists profiles keyed by normalised wallet address.
type Store interface {
	Get(ctx context.Context, wallet string) (*model.Profile, error)
	Put(ctx context.Context, p *model.Profile) error
}

// NormalizeWallet trims and lower-cases a wallet address.
func NormalizeWallet(wallet string) (string, error) {
	w := strings.ToLower(strings.TrimSpace(wallet))
	if !walletPattern.MatchString(w) {
		return "", ErrInvalidWallet
	}
	return w, nil
}

// New returns an empty profile for wallet.
func New(wallet string) *model.Profile {
	return &model.Profile{
		Wallet:            wallet,
		ConnectedAccounts: []model.Platform{},
		PlatformData:      map[model.Platform]model.PlatformSnapshot{},
	}
}

// ─── Memory ──────────────────────────────────────────────────────────────────

// MemoryStore keeps profiles in process. Values are stored as copies.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*model.Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*model.Profile)}
}

func (s *MemoryStore) Get(_ context.Context, wallet string) (*model.Profile, error) {
	w, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[w]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

func (s *MemoryStore) Put(_ context.Context, p *model.Profile) error {
	w, err := NormalizeWallet(p.Wallet)
	if err != nil {
		return err
	}
	c := clone(p)
	c.Wallet = w
	s.mu.Lock()
	s.profiles[w] = c
	s.mu.Unlock()
	return nil
}

func clone(p *model.Profile) *model.Profile {
	c := *p
	c.ConnectedAccounts = append([]model.Platform(nil), p.ConnectedAccounts...)
	c.PlatformData = make(map[model.Platform]model.PlatformSnapshot, len(p.PlatformData))
	for k, v := range p.PlatformData {
		c.PlatformData[k] = v
	}
	if p.VerifiedAccounts != nil {
		c.VerifiedAccounts = make(map[model.Platform]string, len(p.VerifiedAccounts))
		for k, v := range p.VerifiedAccounts {
			c.VerifiedAccounts[k] = v
		}
	}
	return &c
}
