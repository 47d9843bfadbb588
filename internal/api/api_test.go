package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conso-labs/conso-app-sub000/internal/api"
	"github.com/conso-labs/conso-app-sub000/internal/config"
	"github.com/conso-labs/conso-app-sub000/internal/fetcher"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/oauth"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
	"github.com/conso-labs/conso-app-sub000/internal/scoring"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
	"github.com/conso-labs/conso-app-sub000/internal/verify"
)

const (
	appURL = "http://app.test"
	wallet = "0xabc0000000000000000000000000000000000001"
)

var (
	hashKey  = []byte(strings.Repeat("h", 32))
	blockKey = []byte(strings.Repeat("b", 32))
)

// ── Fakes ──

type fakeYouTube struct {
	stats *model.YouTubeStats
	err   error
	opts  fetcher.YouTubeOptions
	id    string
}

func (f *fakeYouTube) GetStats(_ context.Context, id string, opts fetcher.YouTubeOptions) (*model.YouTubeStats, error) {
	f.id, f.opts = id, opts
	return f.stats, f.err
}

type fakeTwitch struct {
	stats *model.TwitchStats
	err   error
}

func (f *fakeTwitch) GetStats(context.Context, string) (*model.TwitchStats, error) {
	return f.stats, f.err
}

type fakeReddit struct {
	stats *model.RedditStats
	err   error
}

func (f *fakeReddit) GetStats(context.Context, string) (*model.RedditStats, error) {
	return f.stats, f.err
}

type fakeDiscord struct {
	stats *model.DiscordStats
	opts  fetcher.DiscordOptions
}

func (f *fakeDiscord) GetStats(_ context.Context, _ string, opts fetcher.DiscordOptions) (*model.DiscordStats, error) {
	f.opts = opts
	return f.stats, nil
}

type fakeRoblox struct {
	stats *model.RobloxStats
	err   error
	panic bool
}

func (f *fakeRoblox) GetStats(context.Context, string) (*model.RobloxStats, error) {
	if f.panic {
		panic("boom")
	}
	return f.stats, f.err
}

type fakeTwitter struct {
	token string
	err   error
}

func (f *fakeTwitter) GetStats(_ context.Context, token string) (*model.TwitterStats, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	return &model.TwitterStats{UserID: "99", Username: "poster", FollowersCount: 50}, nil
}

// ── Harness ──

type harness struct {
	handler  http.Handler
	youtube  *fakeYouTube
	twitch   *fakeTwitch
	reddit   *fakeReddit
	discord  *fakeDiscord
	roblox   *fakeRoblox
	twitter  *fakeTwitter
	verifier *verify.Verifier
	tokens   *tokenServer
}

type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	status atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ts := &tokenServer{}
	ts.status.Store(http.StatusOK)
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(ts.status.Load()))
		w.Write([]byte(`{"access_token":"user-tok","refresh_token":"refresh-1","expires_in":7200}`))
	}))
	t.Cleanup(ts.Close)

	provider := oauth.Provider{
		Name:         "twitter",
		AuthURL:      "https://provider.example/authorize",
		TokenURL:     ts.URL,
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "http://api.test/auth/twitter/callback",
		Scopes:       []string{"users.read"},
		UsePKCE:      true,
		AuthStyle:    oauth.AuthStyleBasic,
	}
	manager := oauth.NewManager(
		oauth.NewMemoryPendingStore(nil), nil,
		oauth.NewClient(provider, upstream.New("twitter", upstream.Options{}), nil),
	)

	h := &harness{
		youtube: &fakeYouTube{},
		twitch:  &fakeTwitch{},
		reddit:  &fakeReddit{},
		discord: &fakeDiscord{},
		roblox:  &fakeRoblox{},
		twitter: &fakeTwitter{},
		tokens:  ts,
	}
	h.verifier = verify.NewVerifier([]byte("verify-secret"), h.roblox)

	srv := api.NewServer(api.Deps{
		AppURL:     appURL,
		Calculator: scoring.NewCalculator(nil),
		YouTube:    h.youtube,
		Twitch:     h.twitch,
		Reddit:     h.reddit,
		Discord:    h.discord,
		Roblox:     h.roblox,
		Twitter:    h.twitter,
		OAuth:      manager,
		Sessions:   api.NewSessions(hashKey, blockKey, false, nil),
		Verifier:   h.verifier,
		Profiles:   profile.NewService(profile.NewMemoryStore(), nil, nil),
		Readiness: func() map[string]error {
			return map[string]error{
				"roblox": nil,
				"twitch": &config.ConfigurationError{Vars: []string{"TWITCH_CLIENT_ID"}},
			}
		},
	})
	h.handler = srv.Router()
	return h
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (h *harness) do(t *testing.T, method, target string, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func cookieNamed(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ── Score ──

func TestScore_YouTube(t *testing.T) {
	h := newHarness(t)
	h.youtube.stats = &model.YouTubeStats{ChannelID: "UC1", SubscriberCount: 5000, VideoCount: 40}

	rec, env := h.do(t, http.MethodGet, "/score/youtube?channel=@creator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "@creator", h.youtube.id)

	var data struct {
		Stats model.YouTubeStats `json:"youtube_stats"`
		Score model.ScoreResult  `json:"youtube_score"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "UC1", data.Stats.ChannelID)
	assert.Equal(t, model.MaxScore, data.Score.MaxScore)
	assert.Greater(t, data.Score.TotalScore, 0.0)
	assert.NotEmpty(t, data.Score.Rating)
	assert.InDelta(t, data.Score.TotalScore, data.Score.Breakdown.Sum(), 0.01)
}

func TestScore_MissingIdentifier(t *testing.T) {
	h := newHarness(t)
	for _, p := range []string{"youtube", "twitch", "reddit", "discord", "roblox"} {
		rec, env := h.do(t, http.MethodGet, "/score/"+p, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, p)
		assert.False(t, env.Success, p)
		assert.NotEmpty(t, env.Error, p)
	}
}

func TestScore_NotFound(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodGet, "/score/reddit?username=ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestScore_UnknownPlatform(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/score/myspace?username=x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScore_ConfigurationError(t *testing.T) {
	h := newHarness(t)
	h.twitch.err = &config.ConfigurationError{Vars: []string{"TWITCH_CLIENT_ID", "TWITCH_CLIENT_SECRET"}}

	rec, env := h.do(t, http.MethodGet, "/score/twitch?username=streamer", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Configuration error: TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET not set", env.Error)
}

func TestScore_UpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.roblox.err = upstream.NewProviderAPIError("roblox", http.StatusServiceUnavailable, []byte("down"))

	rec, env := h.do(t, http.MethodGet, "/score/roblox?username=builderman", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to fetch roblox data", env.Error)
	assert.NotContains(t, rec.Body.String(), "down")
}

func TestScore_InvalidIdentifier(t *testing.T) {
	h := newHarness(t)
	h.reddit.err = fetcher.ErrInvalidIdentifier

	rec, _ := h.do(t, http.MethodGet, "/score/reddit?username=bad%20name", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScore_SessionGatedWithoutCookie(t *testing.T) {
	h := newHarness(t)
	for _, target := range []string{"/score/twitter", "/score/youtube?mine=true", "/score/discord?me=true"} {
		rec, env := h.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.False(t, env.Success, target)
	}
	assert.Empty(t, h.twitter.token, "fetcher must not run without a session")
}

func TestScore_TamperedSessionCookie(t *testing.T) {
	h := newHarness(t)
	forged := &http.Cookie{Name: "conso_twitter_access", Value: "user-tok"}
	rec, _ := h.do(t, http.MethodGet, "/score/twitter", "", forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScore_DiscordGuildPassedThrough(t *testing.T) {
	h := newHarness(t)
	h.discord.stats = &model.DiscordStats{UserID: "175928847299117063"}

	rec, _ := h.do(t, http.MethodGet, "/score/discord?user_id=175928847299117063&guild_id=81384788765712384", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "81384788765712384", h.discord.opts.GuildID)
	assert.Empty(t, h.discord.opts.AccessToken)
}

// verifyRoblox puts wallet's code in the fake bio and verifies it.
func verifyRoblox(t *testing.T, h *harness, userID int64) {
	t.Helper()
	code, err := h.verifier.Code(wallet)
	require.NoError(t, err)
	h.roblox.stats = &model.RobloxStats{UserID: userID, Username: "builderman", FriendCount: 10, Description: "passport " + code}

	rec, env := h.do(t, http.MethodGet, "/verify/roblox?username=builderman&wallet="+wallet, "")
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	var res verify.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.True(t, res.Verified)
}

func TestScore_WalletMergesIntoProfile(t *testing.T) {
	h := newHarness(t)
	verifyRoblox(t, h, 1)

	rec, env := h.do(t, http.MethodGet, "/score/roblox?username=builderman&wallet="+wallet, "")
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var data struct {
		Profile model.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Profile.Badges)
	assert.GreaterOrEqual(t, data.Profile.ZapsScore, int64(profile.ConnectBonus))
	assert.True(t, data.Profile.IsConnected(model.PlatformRoblox))
	assert.Equal(t, "1", data.Profile.VerifiedAccounts[model.PlatformRoblox])

	rec, env = h.do(t, http.MethodGet, "/profiles/"+strings.ToUpper(wallet), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestScore_UnverifiedRobloxNotCredited(t *testing.T) {
	h := newHarness(t)
	h.roblox.stats = &model.RobloxStats{UserID: 1, Username: "builderman", Description: "no code here"}

	rec, env := h.do(t, http.MethodGet, "/verify/roblox?username=builderman&wallet="+wallet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res verify.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.False(t, res.Verified)

	rec, env = h.do(t, http.MethodGet, "/score/roblox?username=builderman&wallet="+wallet, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, env.Success)

	rec, _ = h.do(t, http.MethodGet, "/profiles/"+wallet, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing may be credited")
}

func TestScore_RobloxVerifiedForAnotherUser(t *testing.T) {
	h := newHarness(t)
	verifyRoblox(t, h, 1)

	h.roblox.stats = &model.RobloxStats{UserID: 2, Username: "someoneelse"}
	rec, _ := h.do(t, http.MethodGet, "/score/roblox?username=someoneelse&wallet="+wallet, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := h.do(t, http.MethodGet, "/profiles/"+wallet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.Profile
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Zero(t, p.Badges)
	assert.Zero(t, p.ZapsScore)
}

func TestScore_PublicLookupNotCredited(t *testing.T) {
	h := newHarness(t)
	h.twitch.stats = &model.TwitchStats{UserID: "1", Login: "streamer"}
	h.youtube.stats = &model.YouTubeStats{ChannelID: "UC1"}

	for _, target := range []string{
		"/score/twitch?username=streamer&wallet=" + wallet,
		"/score/youtube?channel=UC1&wallet=" + wallet,
	} {
		rec, _ := h.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}

	// scoring without a wallet still works
	rec, _ := h.do(t, http.MethodGet, "/score/twitch?username=streamer", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScore_InvalidWallet(t *testing.T) {
	h := newHarness(t)
	h.twitch.stats = &model.TwitchStats{UserID: "1", Login: "streamer"}
	rec, _ := h.do(t, http.MethodGet, "/score/twitch?username=streamer&wallet=no", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScore_PanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.roblox.panic = true

	rec, _ := h.do(t, http.MethodGet, "/score/roblox?username=builderman", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ── OAuth ──

func authorize(t *testing.T, h *harness) (state string, flow *http.Cookie) {
	t.Helper()
	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/authorize?wallet="+wallet, "")
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider.example", loc.Host)
	assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))
	state = loc.Query().Get("state")
	require.NotEmpty(t, state)

	flow = cookieNamed(rec.Result().Cookies(), "conso_flow_twitter")
	require.NotNil(t, flow)
	assert.True(t, flow.HttpOnly)
	assert.Equal(t, int(oauth.PendingTTL.Seconds()), flow.MaxAge)
	return state, flow
}

func TestOAuth_FullRoundTrip(t *testing.T) {
	h := newHarness(t)
	state, flow := authorize(t, h)

	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/callback?code=abc&state="+url.QueryEscape(state), "", flow)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appURL+"?auth=success&provider=twitter", rec.Header().Get("Location"))
	assert.EqualValues(t, 1, h.tokens.calls.Load())

	cookies := rec.Result().Cookies()
	access := cookieNamed(cookies, "conso_twitter_access")
	refresh := cookieNamed(cookies, "conso_twitter_refresh")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.InDelta(t, 7200, access.MaxAge, 5)
	assert.Equal(t, int(api.RefreshMaxAge.Seconds()), refresh.MaxAge)
	assert.NotContains(t, access.Value, "user-tok", "token must be sealed")

	rec, env := h.do(t, http.MethodGet, "/score/twitter", "", access)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	assert.Equal(t, "user-tok", h.twitter.token)

	// the flow is consumed: replaying the callback fails without a token call
	rec, _ = h.do(t, http.MethodGet, "/auth/twitter/callback?code=abc&state="+url.QueryEscape(state), "", flow)
	assert.Equal(t, appURL+"?error=missing_pkce&provider=twitter", rec.Header().Get("Location"))
	assert.EqualValues(t, 1, h.tokens.calls.Load())

	rec, env = h.do(t, http.MethodPost, "/auth/twitter/refresh", "", refresh)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	assert.EqualValues(t, 2, h.tokens.calls.Load())
}

// connect completes a Twitter flow started with the given authorize query
// and returns the session cookies.
func connect(t *testing.T, h *harness, query string) []*http.Cookie {
	t.Helper()
	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/authorize"+query, "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	flow := cookieNamed(rec.Result().Cookies(), "conso_flow_twitter")
	require.NotNil(t, flow)

	rec, _ = h.do(t, http.MethodGet, "/auth/twitter/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), "", flow)
	require.Equal(t, appURL+"?auth=success&provider=twitter", rec.Header().Get("Location"))

	var live []*http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge > 0 {
			live = append(live, c)
		}
	}
	return live
}

func TestOAuth_SessionCreditsOnlyItsWallet(t *testing.T) {
	h := newHarness(t)
	cookies := connect(t, h, "?wallet="+strings.ToUpper(wallet))
	require.NotNil(t, cookieNamed(cookies, "conso_twitter_wallet"))

	rec, env := h.do(t, http.MethodGet, "/score/twitter?wallet="+wallet, "", cookies...)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)
	var data struct {
		Profile model.Profile `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Profile.IsConnected(model.PlatformTwitter))

	other := "0xdef0000000000000000000000000000000000002"
	rec, _ = h.do(t, http.MethodGet, "/score/twitter?wallet="+other, "", cookies...)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = h.do(t, http.MethodGet, "/profiles/"+other, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOAuth_SessionWithoutWalletCreditsNothing(t *testing.T) {
	h := newHarness(t)
	cookies := connect(t, h, "")
	assert.Nil(t, cookieNamed(cookies, "conso_twitter_wallet"))

	rec, _ := h.do(t, http.MethodGet, "/score/twitter", "", cookies...)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = h.do(t, http.MethodGet, "/score/twitter?wallet="+wallet, "", cookies...)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOAuth_AuthorizeRejectsInvalidWallet(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/authorize?wallet=bad%20wallet", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuth_CallbackStateMismatch(t *testing.T) {
	h := newHarness(t)
	_, flow := authorize(t, h)

	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/callback?code=abc&state=forged", "", flow)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, appURL+"?error=state_mismatch&provider=twitter", rec.Header().Get("Location"))
	assert.Zero(t, h.tokens.calls.Load())
	assert.Nil(t, cookieNamed(rec.Result().Cookies(), "conso_twitter_access"))
}

func TestOAuth_CallbackWithoutFlowCookie(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/callback?code=abc&state=s", "")
	assert.Equal(t, appURL+"?error=missing_pkce&provider=twitter", rec.Header().Get("Location"))
}

func TestOAuth_ConsentDenied(t *testing.T) {
	h := newHarness(t)
	_, flow := authorize(t, h)
	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/callback?error=access_denied", "", flow)
	assert.Equal(t, appURL+"?error=access_denied&provider=twitter", rec.Header().Get("Location"))
	assert.Zero(t, h.tokens.calls.Load())
}

func TestOAuth_TokenExchangeRejected(t *testing.T) {
	h := newHarness(t)
	h.tokens.status.Store(http.StatusBadRequest)
	state, flow := authorize(t, h)

	rec, _ := h.do(t, http.MethodGet, "/auth/twitter/callback?code=abc&state="+url.QueryEscape(state), "", flow)
	assert.Equal(t, appURL+"?error=token_exchange_failed&provider=twitter", rec.Header().Get("Location"))
}

func TestOAuth_UnknownProvider(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodGet, "/auth/myspace/authorize", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestOAuth_RefreshWithoutCookie(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/auth/twitter/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuth_LogoutClearsCookies(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodPost, "/auth/twitter/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	for _, name := range []string{"conso_twitter_access", "conso_twitter_refresh", "conso_twitter_wallet"} {
		c := cookieNamed(rec.Result().Cookies(), name)
		require.NotNil(t, c, name)
		assert.Less(t, c.MaxAge, 0, name)
	}
}

// ── Verification ──

func TestVerifyRoblox(t *testing.T) {
	h := newHarness(t)
	code, err := h.verifier.Code(wallet)
	require.NoError(t, err)

	rec, env := h.do(t, http.MethodGet, "/verify/roblox/code?wallet="+strings.ToUpper(wallet), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var issued struct{ Code string }
	require.NoError(t, json.Unmarshal(env.Data, &issued))
	assert.Equal(t, code, issued.Code)

	h.roblox.stats = &model.RobloxStats{UserID: 7, Username: "builderman", Description: "my passport " + strings.ToLower(code)}
	rec, env = h.do(t, http.MethodGet, "/verify/roblox?username=builderman&wallet="+wallet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res verify.Result
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Verified)

	h.roblox.stats.Description = "nothing here"
	_, env = h.do(t, http.MethodGet, "/verify/roblox?username=builderman&wallet="+wallet, "")
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.False(t, res.Verified)
}

func TestVerifyRoblox_Errors(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/verify/roblox/code", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/verify/roblox?wallet="+wallet, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/verify/roblox?username=ghost&wallet="+wallet, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.roblox.err = errors.New("network down")
	rec, _ = h.do(t, http.MethodGet, "/verify/roblox?username=ghost&wallet="+wallet, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ── Profiles ──

func TestProfiles_ReadOnly(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/profiles/"+wallet, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := h.do(t, http.MethodPut, "/profiles/"+wallet, `{"badges":999,"zaps_score":123456789}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, env.Success)

	rec, _ = h.do(t, http.MethodGet, "/profiles/"+wallet, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/profiles/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ── Infra ──

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Status    string `json:"status"`
		Platforms map[string]struct {
			Ready bool   `json:"ready"`
			Error string `json:"error"`
		} `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ok", data.Status)
	assert.True(t, data.Platforms["roblox"].Ready)
	assert.False(t, data.Platforms["twitch"].Ready)
	assert.Contains(t, data.Platforms["twitch"].Error, "TWITCH_CLIENT_ID")
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, http.MethodPost, "/score/youtube", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, env.Success)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/score/youtube", nil)
	req.Header.Set("Origin", appURL)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, appURL, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSessions_ExpiredTokenSkipsAccessCookie(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s := api.NewSessions(hashKey, blockKey, true, func() time.Time { return now })
	rec := httptest.NewRecorder()

	err := s.SetTokens(rec, "google", model.OAuthTokenSet{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	access := cookieNamed(cookies, "conso_google_access")
	require.NotNil(t, access)
	assert.Less(t, access.MaxAge, 0)
	refresh := cookieNamed(cookies, "conso_google_refresh")
	require.NotNil(t, refresh)
	assert.True(t, refresh.Secure)
}
