// Package oauth implements the authorization-code (with PKCE) and
// client-credentials grants used to call provider APIs.
package oauth

import (
	"strings"

	"github.com/conso-labs/conso-app-sub000/internal/config"
)

// AuthStyle selects how a confidential client authenticates at the token endpoint.
type AuthStyle int

const (
	AuthStyleForm  AuthStyle = iota // client_secret in the form body
	AuthStyleBasic                  // HTTP Basic client_id:client_secret
)

// Provider describes one OAuth application.
type Provider struct {
	Name         string
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	UsePKCE      bool
	AuthStyle    AuthStyle
	ExtraParams  map[string]string
	// EnvPrefix names the variables checked by Validate, e.g. "TWITTER".
	EnvPrefix string
}

// Validate returns a *config.ConfigurationError when credentials are missing.
func (p Provider) Validate() error {
	prefix := p.EnvPrefix
	if prefix == "" {
		prefix = strings.ToUpper(p.Name)
	}
	return config.Require(
		prefix+"_CLIENT_ID", p.ClientID,
		prefix+"_CLIENT_SECRET", p.ClientSecret,
	)
}

func callbackURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + "/auth/" + name + "/callback"
}

// Twitter is the Twitter/X OAuth 2.0 application (PKCE, Basic client auth).
func Twitter(cfg *config.Config) Provider {
	return Provider{
		Name:         "twitter",
		AuthURL:      "https://twitter.com/i/oauth2/authorize",
		TokenURL:     "https://api.twitter.com/2/oauth2/token",
		ClientID:     cfg.Twitter.ClientID,
		ClientSecret: cfg.Twitter.ClientSecret,
		RedirectURL:  callbackURL(cfg.PublicBaseURL, "twitter"),
		Scopes:       []string{"tweet.read", "users.read", "offline.access"},
		UsePKCE:      true,
		AuthStyle:    AuthStyleBasic,
	}
}

// Google grants read access to the user's YouTube channel.
func Google(cfg *config.Config) Provider {
	return Provider{
		Name:         "google",
		AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:     "https://oauth2.googleapis.com/token",
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  callbackURL(cfg.PublicBaseURL, "google"),
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.readonly"},
		UsePKCE:      true,
		AuthStyle:    AuthStyleForm,
		ExtraParams:  map[string]string{"access_type": "offline", "prompt": "consent"},
	}
}

// Discord identifies the user and lists their guilds.
func Discord(cfg *config.Config) Provider {
	return Provider{
		Name:         "discord",
		AuthURL:      "https://discord.com/oauth2/authorize",
		TokenURL:     "https://discord.com/api/oauth2/token",
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURL:  callbackURL(cfg.PublicBaseURL, "discord"),
		Scopes:       []string{"identify", "guilds"},
		AuthStyle:    AuthStyleForm,
	}
}
