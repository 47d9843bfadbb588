package oauth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

// Phase is the lifecycle position of one authorization attempt.
//
//	START ──► AUTHORIZING ──► CALLBACK_RECEIVED ──► TOKEN_EXCHANGED
//	              │                   │
//	              └───────────────────┴──────────► REJECTED
//
// TOKEN_EXCHANGED and REJECTED are terminal.
type Phase string

const (
	PhaseStart            Phase = "START"
	PhaseAuthorizing      Phase = "AUTHORIZING"
	PhaseCallbackReceived Phase = "CALLBACK_RECEIVED"
	PhaseTokenExchanged   Phase = "TOKEN_EXCHANGED"
	PhaseRejected         Phase = "REJECTED"
)

var validTransitions = map[Phase][]Phase{
	PhaseStart:            {PhaseAuthorizing},
	PhaseAuthorizing:      {PhaseCallbackReceived, PhaseRejected},
	PhaseCallbackReceived: {PhaseTokenExchanged, PhaseRejected},
}

// ParsePhase converts a raw string to a Phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	switch p {
	case PhaseStart, PhaseAuthorizing, PhaseCallbackReceived, PhaseTokenExchanged, PhaseRejected:
		return p, nil
	}
	return "", fmt.Errorf("unknown oauth phase %q", s)
}

// IsTransitionAllowed reports whether from → to is permitted.
func IsTransitionAllowed(from, to Phase) bool {
	for _, p := range validTransitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves p.
func IsTerminal(p Phase) bool {
	_, ok := validTransitions[p]
	return !ok
}

// Flow is the server-side record of one authorization attempt. Only its ID
// ever reaches the browser.
type Flow struct {
	ID        string           `json:"id"`
	Provider  string           `json:"provider"`
	PKCE      model.PKCEParams `json:"pkce"`
	Subject   string           `json:"subject,omitempty"`
	Phase     Phase            `json:"phase"`
	CreatedAt time.Time        `json:"created_at"`
}

// Advance moves the flow to the next phase.
func (f *Flow) Advance(to Phase) error {
	if !IsTransitionAllowed(f.Phase, to) {
		return fmt.Errorf("oauth flow %s: transition %s → %s not allowed", f.ID, f.Phase, to)
	}
	f.Phase = to
	return nil
}

// AcceptCallback records the provider redirect. A state that differs from
// the one issued at authorize time rejects the flow.
func (f *Flow) AcceptCallback(state string) error {
	if err := f.Advance(PhaseCallbackReceived); err != nil {
		return err
	}
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(f.PKCE.State)) != 1 {
		f.Phase = PhaseRejected
		return ErrStateMismatch
	}
	return nil
}
