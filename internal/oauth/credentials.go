package oauth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/config"
	"github.com/conso-labs/conso-app-sub000/internal/metrics"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

// CredentialsConfig describes an app-only (client_credentials) grant.
type CredentialsConfig struct {
	Name         string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AuthStyle    AuthStyle
	UserAgent    string
	EnvPrefix    string
}

// ClientCredentials is a cached app access token for one provider.
type ClientCredentials struct {
	cfg     CredentialsConfig
	http    *upstream.Client
	now     func() time.Time
	cache   *TokenCache
	metrics *metrics.PassportMetrics
}

func NewClientCredentials(cfg CredentialsConfig, hc *upstream.Client, now func() time.Time) *ClientCredentials {
	if now == nil {
		now = time.Now
	}
	cc := &ClientCredentials{cfg: cfg, http: hc, now: now}
	cc.cache = NewTokenCache(cc.fetch, now)
	return cc
}

// WithMetrics records token grants on m.
func (c *ClientCredentials) WithMetrics(m *metrics.PassportMetrics) *ClientCredentials {
	c.metrics = m
	return c
}

// TwitchCredentials returns the Twitch app token source.
func TwitchCredentials(cfg *config.Config, hc *upstream.Client, now func() time.Time) *ClientCredentials {
	return NewClientCredentials(CredentialsConfig{
		Name:         "twitch",
		TokenURL:     "https://id.twitch.tv/oauth2/token",
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		AuthStyle:    AuthStyleForm,
		EnvPrefix:    "TWITCH",
	}, hc, now)
}

// RedditCredentials returns the Reddit app-only token source.
func RedditCredentials(cfg *config.Config, hc *upstream.Client, now func() time.Time) *ClientCredentials {
	return NewClientCredentials(CredentialsConfig{
		Name:         "reddit",
		TokenURL:     "https://www.reddit.com/api/v1/access_token",
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		AuthStyle:    AuthStyleBasic,
		UserAgent:    cfg.RedditUserAgent,
		EnvPrefix:    "REDDIT",
	}, hc, now)
}

func (c *ClientCredentials) Name() string     { return c.cfg.Name }
func (c *ClientCredentials) ClientID() string { return c.cfg.ClientID }

// Validate reports missing credentials as a *config.ConfigurationError.
func (c *ClientCredentials) Validate() error {
	return config.Require(
		c.cfg.EnvPrefix+"_CLIENT_ID", c.cfg.ClientID,
		c.cfg.EnvPrefix+"_CLIENT_SECRET", c.cfg.ClientSecret,
	)
}

// Token returns a valid app token, fetching one when the cache is empty or
// close to expiry.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c.cache.Token(ctx)
}

// Invalidate drops the cached token.
func (c *ClientCredentials) Invalidate() { c.cache.Invalidate() }

func (c *ClientCredentials) fetch(ctx context.Context) (model.OAuthTokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	header := http.Header{}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}
	switch c.cfg.AuthStyle {
	case AuthStyleBasic:
		header.Set("Authorization", upstream.BasicAuth(c.cfg.ClientID, c.cfg.ClientSecret))
	default:
		form.Set("client_id", c.cfg.ClientID)
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	resp, err := c.http.PostForm(ctx, c.cfg.TokenURL, header, form)
	if err != nil {
		c.metrics.ObserveTokenGrant(c.cfg.Name, "client_credentials", err)
		return model.OAuthTokenSet{}, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		err := upstream.NewProviderAPIError(c.cfg.Name, resp.Status, resp.Body)
		c.metrics.ObserveTokenGrant(c.cfg.Name, "client_credentials", err)
		return model.OAuthTokenSet{}, err
	}
	tokens, err := parseToken(c.cfg.Name, resp.Body, c.now())
	c.metrics.ObserveTokenGrant(c.cfg.Name, "client_credentials", err)
	return tokens, err
}
