package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

const twitchBaseURL = "https://api.twitch.tv/helix"

// TwitchFetcher reads broadcaster statistics from the Helix API with an app
// access token.
type TwitchFetcher struct {
	BaseURL string
	tokens  AppToken
	http    *upstream.Client
	now     func() time.Time
}

func NewTwitchFetcher(tokens AppToken, hc *upstream.Client, now func() time.Time) *TwitchFetcher {
	return &TwitchFetcher{BaseURL: twitchBaseURL, tokens: tokens, http: hc, now: nowOrDefault(now)}
}

type twitchUsers struct {
	Data []struct {
		ID              string    `json:"id"`
		Login           string    `json:"login"`
		DisplayName     string    `json:"display_name"`
		Description     string    `json:"description"`
		BroadcasterType string    `json:"broadcaster_type"`
		CreatedAt       time.Time `json:"created_at"`
	} `json:"data"`
}

type twitchFollowers struct {
	Total int64 `json:"total"`
}

type twitchVideos struct {
	Data []struct {
		CreatedAt time.Time `json:"created_at"`
		Duration  string    `json:"duration"`
		ViewCount int64     `json:"view_count"`
	} `json:"data"`
}

// GetStats looks up a broadcaster by login name.
func (f *TwitchFetcher) GetStats(ctx context.Context, login string) (*model.TwitchStats, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return nil, ErrInvalidIdentifier
	}

	var users twitchUsers
	if err := f.get(ctx, "/users", url.Values{"login": {login}}, &users); err != nil {
		if upstream.StatusOf(err) == http.StatusBadRequest {
			// Helix answers 400 for logins that cannot exist
			return nil, nil
		}
		return nil, err
	}
	if len(users.Data) == 0 {
		return nil, nil
	}
	u := users.Data[0]
	if u.ID == "" {
		return nil, upstream.Malformed("twitch", "user without id")
	}

	stats := &model.TwitchStats{
		UserID:          u.ID,
		Login:           u.Login,
		DisplayName:     u.DisplayName,
		Description:     u.Description,
		BroadcasterType: u.BroadcasterType,
		CreatedAt:       u.CreatedAt,
	}

	var followers twitchFollowers
	if err := f.get(ctx, "/channels/followers", url.Values{"broadcaster_id": {u.ID}, "first": {"1"}}, &followers); err != nil {
		return nil, err
	}
	stats.FollowerCount = followers.Total

	var videos twitchVideos
	q := url.Values{"user_id": {u.ID}, "type": {"archive"}, "first": {"100"}}
	if err := f.get(ctx, "/videos", q, &videos); err != nil {
		return nil, err
	}

	now := f.now()
	var minutes float64
	var views int64
	for _, v := range videos.Data {
		if inWindow(v.CreatedAt, now) {
			stats.StreamsLast30Days++
		}
		minutes += ParseTwitchDuration(v.Duration).Minutes()
		views += v.ViewCount
		if v.ViewCount > stats.PeakVODViews {
			stats.PeakVODViews = v.ViewCount
		}
	}
	if n := len(videos.Data); n > 0 {
		stats.SampledVODs = n
		stats.AvgStreamDurationMinutes = minutes / float64(n)
		stats.AvgVODViews = float64(views) / float64(n)
	}
	return stats, nil
}

// ParseTwitchDuration parses Helix durations such as "3h8m33s". Malformed
// values count as zero.
func ParseTwitchDuration(s string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (f *TwitchFetcher) get(ctx context.Context, path string, q url.Values, out any) error {
	header := http.Header{}
	header.Set("Client-Id", f.tokens.ClientID())
	return getWithAppToken(ctx, f.http, f.tokens, f.BaseURL+path+"?"+q.Encode(), header, out)
}
