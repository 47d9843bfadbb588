package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

// ErrUserNotFound is returned when the username does not resolve upstream.
var ErrUserNotFound = errors.New("user not found")

// ErrNoSecret is returned when codes cannot be issued.
var ErrNoSecret = errors.New("verification secret is not configured")

// RobloxSource fetches a Roblox profile by username. A nil profile with a
// nil error means the user does not exist.
type RobloxSource interface {
	GetStats(ctx context.Context, username string) (*model.RobloxStats, error)
}

// Result is the outcome of one verification attempt.
type Result struct {
	Verified bool               `json:"verified"`
	Code     string             `json:"code"`
	Profile  *model.RobloxStats `json:"profile,omitempty"`
}

// Verifier checks that a Roblox user placed the subject's code in their bio.
type Verifier struct {
	secret []byte
	source RobloxSource
}

func NewVerifier(secret []byte, source RobloxSource) *Verifier {
	return &Verifier{secret: secret, source: source}
}

// Code returns the code the subject must publish.
func (v *Verifier) Code(subject string) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNoSecret
	}
	return IssueCode(v.secret, subject), nil
}

// Verify fetches the user's profile and looks for the subject's code in the
// description.
func (v *Verifier) Verify(ctx context.Context, username, subject string) (Result, error) {
	code, err := v.Code(subject)
	if err != nil {
		return Result{}, err
	}
	profile, err := v.source.GetStats(ctx, username)
	if err != nil {
		return Result{}, fmt.Errorf("verify %s: %w", username, err)
	}
	if profile == nil {
		return Result{}, ErrUserNotFound
	}
	return Result{
		Verified: VerifyCode(profile.Description, code),
		Code:     code,
		Profile:  profile,
	}, nil
}
