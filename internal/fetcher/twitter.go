package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

const twitterBaseURL = "https://api.twitter.com/2"

// TwitterFetcher reads the authenticated user's profile and recent tweets
// with their OAuth access token.
type TwitterFetcher struct {
	BaseURL string
	http    *upstream.Client
	now     func() time.Time
}

func NewTwitterFetcher(hc *upstream.Client, now func() time.Time) *TwitterFetcher {
	return &TwitterFetcher{BaseURL: twitterBaseURL, http: hc, now: nowOrDefault(now)}
}

// TwitterUser is the users/me payload.
type TwitterUser struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"created_at"`
	Description   string    `json:"description"`
	URL           string    `json:"url"`
	Verified      bool      `json:"verified"`
	PublicMetrics struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
		TweetCount     int64 `json:"tweet_count"`
		ListedCount    int64 `json:"listed_count"`
	} `json:"public_metrics"`
}

// Tweet is one entry of the user timeline.
type Tweet struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int64 `json:"retweet_count"`
		ReplyCount   int64 `json:"reply_count"`
		LikeCount    int64 `json:"like_count"`
		QuoteCount   int64 `json:"quote_count"`
	} `json:"public_metrics"`
}

// FetchUserProfile returns the owner of accessToken.
func (f *TwitterFetcher) FetchUserProfile(ctx context.Context, accessToken string) (*TwitterUser, error) {
	q := url.Values{"user.fields": {"created_at,description,public_metrics,verified,url"}}
	var resp struct {
		Data *TwitterUser `json:"data"`
	}
	if err := f.http.GetJSON(ctx, f.BaseURL+"/users/me?"+q.Encode(), bearer(accessToken), &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, upstream.Malformed("twitter", "users/me without data")
	}
	return resp.Data, nil
}

// FetchUserTweets returns up to 100 of the user's most recent tweets.
func (f *TwitterFetcher) FetchUserTweets(ctx context.Context, accessToken, userID string) ([]Tweet, error) {
	q := url.Values{
		"max_results":  {"100"},
		"tweet.fields": {"created_at,public_metrics"},
	}
	var resp struct {
		Data []Tweet `json:"data"`
	}
	if err := f.http.GetJSON(ctx, f.BaseURL+"/users/"+url.PathEscape(userID)+"/tweets?"+q.Encode(), bearer(accessToken), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetStats combines the profile and the recent timeline.
func (f *TwitterFetcher) GetStats(ctx context.Context, accessToken string) (*model.TwitterStats, error) {
	if accessToken == "" {
		return nil, ErrInvalidIdentifier
	}
	user, err := f.FetchUserProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	tweets, err := f.FetchUserTweets(ctx, accessToken, user.ID)
	if err != nil {
		return nil, err
	}

	m := user.PublicMetrics
	stats := &model.TwitterStats{
		UserID:         user.ID,
		Username:       user.Username,
		Name:           user.Name,
		Description:    user.Description,
		URL:            user.URL,
		CreatedAt:      user.CreatedAt,
		Verified:       user.Verified,
		FollowersCount: m.FollowersCount,
		FollowingCount: m.FollowingCount,
		TweetCount:     m.TweetCount,
		ListedCount:    m.ListedCount,
		SampledTweets:  len(tweets),
	}

	now := f.now()
	var engagement int64
	for _, t := range tweets {
		pm := t.PublicMetrics
		engagement += pm.LikeCount + pm.RetweetCount + pm.ReplyCount + pm.QuoteCount
		if inWindow(t.CreatedAt, now) {
			stats.TweetsLast30Days++
		}
	}
	if len(tweets) > 0 {
		stats.AvgEngagementPerTweet = float64(engagement) / float64(len(tweets))
	}
	if m.FollowersCount > 0 {
		stats.EngagementRate = stats.AvgEngagementPerTweet / float64(m.FollowersCount) * 100
	}
	return stats, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {upstream.Bearer(token)}}
}
