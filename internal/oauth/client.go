package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/metrics"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/pkce"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

// AuthorizeRequest is the consent URL plus the material to persist until
// the callback.
type AuthorizeRequest struct {
	URL  string
	PKCE model.PKCEParams
}

// Client runs the authorization-code grant against one provider.
type Client struct {
	provider Provider
	http     *upstream.Client
	now      func() time.Time
	metrics  *metrics.PassportMetrics
}

// NewClient returns a client for p. A nil clock means time.Now.
func NewClient(p Provider, hc *upstream.Client, now func() time.Time) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{provider: p, http: hc, now: now}
}

// WithMetrics records token grants on m.
func (c *Client) WithMetrics(m *metrics.PassportMetrics) *Client {
	c.metrics = m
	return c
}

func (c *Client) Provider() Provider { return c.provider }

// BuildAuthorizeURL creates fresh PKCE material and the provider consent URL.
func (c *Client) BuildAuthorizeURL() (AuthorizeRequest, error) {
	if err := c.provider.Validate(); err != nil {
		return AuthorizeRequest{}, err
	}
	params, err := pkce.NewParams()
	if err != nil {
		return AuthorizeRequest{}, err
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.provider.ClientID)
	q.Set("redirect_uri", c.provider.RedirectURL)
	q.Set("scope", strings.Join(c.provider.Scopes, " "))
	q.Set("state", params.State)
	if c.provider.UsePKCE {
		q.Set("code_challenge", params.CodeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	for k, v := range c.provider.ExtraParams {
		q.Set(k, v)
	}

	sep := "?"
	if strings.Contains(c.provider.AuthURL, "?") {
		sep = "&"
	}
	return AuthorizeRequest{URL: c.provider.AuthURL + sep + q.Encode(), PKCE: params}, nil
}

// ExchangeCode trades an authorization code for tokens. It is never retried:
// a code is single-use.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (model.OAuthTokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.provider.RedirectURL)
	if c.provider.UsePKCE {
		form.Set("code_verifier", verifier)
	}
	tokens, err := c.requestToken(ctx, form, "")
	c.metrics.ObserveTokenGrant(c.provider.Name, "authorization_code", err)
	return tokens, err
}

// Refresh obtains a new access token. Providers that do not rotate refresh
// tokens keep the previous one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (model.OAuthTokenSet, error) {
	if refreshToken == "" {
		return model.OAuthTokenSet{}, ErrNoRefreshToken
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	tokens, err := c.requestToken(ctx, form, refreshToken)
	c.metrics.ObserveTokenGrant(c.provider.Name, "refresh_token", err)
	return tokens, err
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

func (c *Client) requestToken(ctx context.Context, form url.Values, previousRefresh string) (model.OAuthTokenSet, error) {
	if err := c.provider.Validate(); err != nil {
		return model.OAuthTokenSet{}, err
	}
	form.Set("client_id", c.provider.ClientID)

	header := http.Header{}
	switch c.provider.AuthStyle {
	case AuthStyleBasic:
		header.Set("Authorization", upstream.BasicAuth(c.provider.ClientID, c.provider.ClientSecret))
	default:
		form.Set("client_secret", c.provider.ClientSecret)
	}

	resp, err := c.http.PostForm(ctx, c.provider.TokenURL, header, form)
	if err != nil {
		return model.OAuthTokenSet{}, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		slog.Warn("token endpoint rejected request", "provider", c.provider.Name, "status", resp.Status, "grant", form.Get("grant_type"))
		return model.OAuthTokenSet{}, &TokenExchangeError{
			Provider: c.provider.Name,
			Status:   resp.Status,
			Body:     truncate(string(resp.Body), 512),
		}
	}

	tokens, err := parseToken(c.provider.Name, resp.Body, c.now())
	if err != nil {
		return model.OAuthTokenSet{}, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = previousRefresh
	}
	return tokens, nil
}

func parseToken(provider string, body []byte, now time.Time) (model.OAuthTokenSet, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return model.OAuthTokenSet{}, fmt.Errorf("%s: %w: %v", provider, upstream.ErrMalformedPayload, err)
	}
	if tr.AccessToken == "" {
		return model.OAuthTokenSet{}, upstream.Malformed(provider, "token response without access_token")
	}
	tokens := model.OAuthTokenSet{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	if tr.ExpiresIn > 0 {
		tokens.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
