package fetcher

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

const (
	redditBaseURL       = "https://oauth.reddit.com"
	redditTopSubreddits = 5
)

var redditUsername = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// RedditFetcher reads account and activity data with an app-only token.
type RedditFetcher struct {
	BaseURL   string
	UserAgent string
	tokens    AppToken
	http      *upstream.Client
	now       func() time.Time
}

func NewRedditFetcher(tokens AppToken, userAgent string, hc *upstream.Client, now func() time.Time) *RedditFetcher {
	return &RedditFetcher{BaseURL: redditBaseURL, UserAgent: userAgent, tokens: tokens, http: hc, now: nowOrDefault(now)}
}

type redditAbout struct {
	Data struct {
		ID               string  `json:"id"`
		Name             string  `json:"name"`
		CreatedUTC       float64 `json:"created_utc"`
		LinkKarma        int64   `json:"link_karma"`
		CommentKarma     int64   `json:"comment_karma"`
		TotalKarma       int64   `json:"total_karma"`
		IsGold           bool    `json:"is_gold"`
		IsMod            bool    `json:"is_mod"`
		HasVerifiedEmail bool    `json:"has_verified_email"`
		IsEmployee       bool    `json:"is_employee"`
		IsSuspended      bool    `json:"is_suspended"`
	} `json:"data"`
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditItem `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditItem struct {
	Subreddit  string  `json:"subreddit"`
	Score      int64   `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

// GetStats fetches a user's profile, then their recent submissions and
// comments concurrently.
func (f *RedditFetcher) GetStats(ctx context.Context, username string) (*model.RedditStats, error) {
	username = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(username), "/"), "u/")
	if !redditUsername.MatchString(username) {
		return nil, ErrInvalidIdentifier
	}

	var about redditAbout
	err := f.get(ctx, "/user/"+url.PathEscape(username)+"/about", nil, &about)
	if upstream.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := about.Data
	if u.IsSuspended || u.Name == "" {
		return nil, nil
	}

	stats := &model.RedditStats{
		ID:               u.ID,
		Username:         u.Name,
		CreatedAt:        unixSeconds(u.CreatedUTC),
		LinkKarma:        u.LinkKarma,
		CommentKarma:     u.CommentKarma,
		TotalKarma:       u.TotalKarma,
		IsGold:           u.IsGold,
		IsMod:            u.IsMod,
		HasVerifiedEmail: u.HasVerifiedEmail,
		IsEmployee:       u.IsEmployee,
	}
	if stats.TotalKarma == 0 {
		stats.TotalKarma = u.LinkKarma + u.CommentKarma
	}

	var posts, comments []redditItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		posts, err = f.listing(gctx, username, "submitted")
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = f.listing(gctx, username, "comments")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := f.now()
	var postScore, commentScore int64
	counts := make(map[string]int)
	for _, p := range posts {
		postScore += p.Score
		if inWindow(unixSeconds(p.CreatedUTC), now) {
			stats.PostsLast30Days++
		}
		if p.Subreddit != "" {
			counts[p.Subreddit]++
		}
	}
	for _, c := range comments {
		commentScore += c.Score
		if inWindow(unixSeconds(c.CreatedUTC), now) {
			stats.CommentsLast30Days++
		}
		if c.Subreddit != "" {
			counts[c.Subreddit]++
		}
	}
	if len(posts) > 0 {
		stats.AvgPostScore = float64(postScore) / float64(len(posts))
	}
	if len(comments) > 0 {
		stats.AvgCommentScore = float64(commentScore) / float64(len(comments))
	}
	if n := len(posts) + len(comments); n > 0 {
		stats.AverageScore = float64(postScore+commentScore) / float64(n)
	}
	stats.TopSubreddits = topSubreddits(counts, redditTopSubreddits)
	return stats, nil
}

func (f *RedditFetcher) listing(ctx context.Context, username, kind string) ([]redditItem, error) {
	q := url.Values{"limit": {"100"}, "sort": {"new"}, "raw_json": {"1"}}
	var l redditListing
	if err := f.get(ctx, "/user/"+url.PathEscape(username)+"/"+kind, q, &l); err != nil {
		return nil, err
	}
	items := make([]redditItem, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		items = append(items, c.Data)
	}
	return items, nil
}

func (f *RedditFetcher) get(ctx context.Context, path string, q url.Values, out any) error {
	header := http.Header{}
	header.Set("User-Agent", f.UserAgent)
	u := f.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return getWithAppToken(ctx, f.http, f.tokens, u, header, out)
}

// topSubreddits orders by count, then name, and keeps the first n.
func topSubreddits(counts map[string]int, n int) []model.SubredditCount {
	out := make([]model.SubredditCount, 0, len(counts))
	for name, c := range counts {
		out = append(out, model.SubredditCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func unixSeconds(v float64) time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
