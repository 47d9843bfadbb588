package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

// ErrMissingCode is returned when the callback carries no authorization code.
var ErrMissingCode = errors.New("missing_code")

// Manager drives authorization flows for every configured provider.
type Manager struct {
	clients map[string]*Client
	pending PendingStore
	now     func() time.Time
}

func NewManager(pending PendingStore, now func() time.Time, clients ...*Client) *Manager {
	if now == nil {
		now = time.Now
	}
	m := &Manager{clients: make(map[string]*Client, len(clients)), pending: pending, now: now}
	for _, c := range clients {
		m.clients[c.Provider().Name] = c
	}
	return m
}

// Client returns the client registered for provider.
func (m *Manager) Client(provider string) (*Client, error) {
	c, ok := m.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return c, nil
}

// Begin starts a flow and returns its id (for the browser cookie) and the
// provider consent URL.
func (m *Manager) Begin(ctx context.Context, provider, subject string) (string, string, error) {
	c, err := m.Client(provider)
	if err != nil {
		return "", "", err
	}
	req, err := c.BuildAuthorizeURL()
	if err != nil {
		return "", "", err
	}
	flow := Flow{
		ID:        uuid.NewString(),
		Provider:  provider,
		PKCE:      req.PKCE,
		Subject:   subject,
		Phase:     PhaseStart,
		CreatedAt: m.now(),
	}
	if err := flow.Advance(PhaseAuthorizing); err != nil {
		return "", "", err
	}
	if err := m.pending.Save(ctx, flow, PendingTTL); err != nil {
		return "", "", fmt.Errorf("save pending flow: %w", err)
	}
	return flow.ID, req.URL, nil
}

// Complete consumes the pending flow, checks state and exchanges the code.
// State is verified before any call to the provider.
func (m *Manager) Complete(ctx context.Context, provider, flowID, state, code string) (model.OAuthTokenSet, Flow, error) {
	c, err := m.Client(provider)
	if err != nil {
		return model.OAuthTokenSet{}, Flow{}, err
	}
	if flowID == "" {
		return model.OAuthTokenSet{}, Flow{}, ErrMissingPKCE
	}
	flow, err := m.pending.Take(ctx, flowID)
	if err != nil {
		return model.OAuthTokenSet{}, Flow{}, err
	}
	if flow.Provider != provider {
		flow.Phase = PhaseRejected
		return model.OAuthTokenSet{}, flow, ErrStateMismatch
	}
	if err := flow.AcceptCallback(state); err != nil {
		slog.Warn("oauth callback rejected", "provider", provider, "flow", flow.ID, "error", err)
		return model.OAuthTokenSet{}, flow, err
	}
	if code == "" {
		_ = flow.Advance(PhaseRejected)
		return model.OAuthTokenSet{}, flow, ErrMissingCode
	}

	tokens, err := c.ExchangeCode(ctx, code, flow.PKCE.CodeVerifier)
	if err != nil {
		_ = flow.Advance(PhaseRejected)
		return model.OAuthTokenSet{}, flow, err
	}
	if err := flow.Advance(PhaseTokenExchanged); err != nil {
		return model.OAuthTokenSet{}, flow, err
	}
	slog.Info("oauth tokens exchanged", "provider", provider, "flow", flow.ID, "tokens", tokens)
	return tokens, flow, nil
}

// Refresh renews a session token with provider.
func (m *Manager) Refresh(ctx context.Context, provider, refreshToken string) (model.OAuthTokenSet, error) {
	c, err := m.Client(provider)
	if err != nil {
		return model.OAuthTokenSet{}, err
	}
	return c.Refresh(ctx, refreshToken)
}

// Providers lists the registered provider names.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}
