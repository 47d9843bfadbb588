// Package model defines the data structures shared by fetchers, the scoring
// engine, the OAuth client and the HTTP layer.
//
// Stats structs are snapshots of a single upstream fetch: they are built once
// by a fetcher and never mutated afterwards.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Platform identifies a connected third-party account type.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTwitch  Platform = "twitch"
	PlatformReddit  Platform = "reddit"
	PlatformDiscord Platform = "discord"
	PlatformRoblox  Platform = "roblox"
	PlatformTwitter Platform = "twitter"
)

// Platforms lists every scored platform in display order.
var Platforms = []Platform{
	PlatformYouTube,
	PlatformTwitch,
	PlatformReddit,
	PlatformDiscord,
	PlatformRoblox,
	PlatformTwitter,
}

// ParsePlatform converts a raw path segment to a Platform.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// ─── Scores ──────────────────────────────────────────────────────────────────

// MaxScore is the upper bound of every platform score.
const MaxScore = 100

// SubScore is one weighted component of a platform score.
type SubScore struct {
	Name  string
	Score float64
}

// Breakdown keeps sub-scores in display order. It marshals to a JSON object
// whose keys appear in insertion order.
type Breakdown []SubScore

// Get returns the sub-score registered under name.
func (b Breakdown) Get(name string) (float64, bool) {
	for _, s := range b {
		if s.Name == name {
			return s.Score, true
		}
	}
	return 0, false
}

// Sum adds up every sub-score.
func (b Breakdown) Sum() float64 {
	var total float64
	for _, s := range b {
		total += s.Score
	}
	return total
}

// MarshalJSON encodes the breakdown as an ordered JSON object.
func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object while preserving key order.
func (b *Breakdown) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("breakdown: expected object, got %v", tok)
	}
	out := make(Breakdown, 0)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("breakdown: expected string key, got %v", keyTok)
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("breakdown %q: %w", key, err)
		}
		out = append(out, SubScore{Name: key, Score: score})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*b = out
	return nil
}

// ScoreResult is the output of every platform calculator.
type ScoreResult struct {
	TotalScore float64   `json:"total_score"`
	MaxScore   int       `json:"max_score"`
	Breakdown  Breakdown `json:"breakdown"`
	Rating     string    `json:"rating"`
}

// ─── Raw stats ───────────────────────────────────────────────────────────────

// YouTubeStats is a snapshot of a channel plus its recent uploads.
type YouTubeStats struct {
	ChannelID             string    `json:"channel_id"`
	Title                 string    `json:"title"`
	Handle                string    `json:"handle,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	SubscriberCount       int64     `json:"subscriber_count"`
	HiddenSubscriberCount bool      `json:"hidden_subscriber_count"`
	VideoCount            int64     `json:"video_count"`
	ViewCount             int64     `json:"view_count"`
	RecentUploadFrequency int       `json:"recent_upload_frequency"`
	EngagementRate        float64   `json:"engagement_rate"`
	AverageViewsPerVideo  float64   `json:"average_views_per_video"`
	PeakVideoViews        int64     `json:"peak_video_views"`
	SampledVideos         int       `json:"sampled_videos"`
}

// TwitchStats is a snapshot of a broadcaster plus recent VOD archives.
type TwitchStats struct {
	UserID                   string    `json:"user_id"`
	Login                    string    `json:"login"`
	DisplayName              string    `json:"display_name"`
	Description              string    `json:"description,omitempty"`
	BroadcasterType          string    `json:"broadcaster_type"`
	CreatedAt                time.Time `json:"created_at"`
	FollowerCount            int64     `json:"follower_count"`
	SampledVODs              int       `json:"sampled_vods"`
	StreamsLast30Days        int       `json:"streams_last_30_days"`
	AvgStreamDurationMinutes float64   `json:"avg_stream_duration_minutes"`
	AvgVODViews              float64   `json:"avg_vod_views"`
	PeakVODViews             int64     `json:"peak_vod_views"`
}

// SubredditCount is one entry of the most-active-subreddits breakdown.
type SubredditCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RedditStats is a snapshot of a Reddit account plus recent submissions and comments.
type RedditStats struct {
	ID                 string           `json:"id"`
	Username           string           `json:"username"`
	CreatedAt          time.Time        `json:"created_at"`
	LinkKarma          int64            `json:"link_karma"`
	CommentKarma       int64            `json:"comment_karma"`
	TotalKarma         int64            `json:"karma_total"`
	IsGold             bool             `json:"is_gold"`
	IsMod              bool             `json:"is_mod"`
	HasVerifiedEmail   bool             `json:"has_verified_email"`
	IsEmployee         bool             `json:"is_employee"`
	PostsLast30Days    int              `json:"posts_last_30_days"`
	CommentsLast30Days int              `json:"comments_last_30_days"`
	AvgPostScore       float64          `json:"avg_post_score"`
	AvgCommentScore    float64          `json:"avg_comment_score"`
	AverageScore       float64          `json:"average_score"`
	TopSubreddits      []SubredditCount `json:"top_subreddits"`
}

// DiscordGuildStats holds server-level counts; absent when no guild was requested.
type DiscordGuildStats struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MemberCount   int64  `json:"member_count"`
	PresenceCount int64  `json:"presence_count"`
	PremiumTier   int    `json:"premium_tier"`
	BoostCount    int64  `json:"boost_count"`
}

// DiscordMemberStats holds guild-member fields; absent when not retrievable.
type DiscordMemberStats struct {
	JoinedAt  time.Time `json:"joined_at"`
	RoleCount int       `json:"role_count"`
	Nickname  string    `json:"nickname,omitempty"`
}

// DiscordStats is a snapshot of a Discord user and, optionally, one guild.
type DiscordStats struct {
	UserID      string              `json:"user_id"`
	Username    string              `json:"username"`
	GlobalName  string              `json:"global_name,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	PremiumType int                 `json:"premium_type"`
	PublicFlags int64               `json:"public_flags"`
	BadgeCount  int                 `json:"badge_count"`
	Verified    bool                `json:"verified"`
	Guild       *DiscordGuildStats  `json:"guild,omitempty"`
	Member      *DiscordMemberStats `json:"member,omitempty"`
}

// RobloxStats is a snapshot of a Roblox user profile and social counts.
type RobloxStats struct {
	UserID           int64     `json:"user_id"`
	Username         string    `json:"username"`
	DisplayName      string    `json:"display_name"`
	Description      string    `json:"description"`
	CreatedAt        time.Time `json:"created_at"`
	HasVerifiedBadge bool      `json:"has_verified_badge"`
	IsBanned         bool      `json:"is_banned"`
	FriendCount      int64     `json:"friend_count"`
	FollowerCount    int64     `json:"follower_count"`
	FollowingCount   int64     `json:"following_count"`
	GroupCount       int       `json:"group_count"`
}

// TwitterStats is a snapshot of the authenticated Twitter/X user plus recent tweets.
type TwitterStats struct {
	UserID                string    `json:"user_id"`
	Username              string    `json:"username"`
	Name                  string    `json:"name"`
	Description           string    `json:"description,omitempty"`
	URL                   string    `json:"url,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	Verified              bool      `json:"verified"`
	FollowersCount        int64     `json:"followers_count"`
	FollowingCount        int64     `json:"following_count"`
	TweetCount            int64     `json:"tweet_count"`
	ListedCount           int64     `json:"listed_count"`
	SampledTweets         int       `json:"sampled_tweets"`
	TweetsLast30Days      int       `json:"tweets_last_30_days"`
	AvgEngagementPerTweet float64   `json:"avg_engagement_per_tweet"`
	EngagementRate        float64   `json:"engagement_rate"`
}

// ─── OAuth ───────────────────────────────────────────────────────────────────

// PKCEParams is the material created at authorize time and consumed once at callback.
type PKCEParams struct {
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
	State         string `json:"state"`
}

// OAuthTokenSet is a provider token grant. It is a secret.
type OAuthTokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LogValue keeps token material out of structured logs.
func (t OAuthTokenSet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
		slog.Time("expires_at", t.ExpiresAt),
	)
}

// Lifetime returns the remaining validity relative to now, never negative.
func (t OAuthTokenSet) Lifetime(now time.Time) time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ─── Profiles ────────────────────────────────────────────────────────────────

// PlatformSnapshot is the last stats/score pair recorded for a platform.
type PlatformSnapshot struct {
	Stats     json.RawMessage `json:"stats"`
	Score     ScoreResult     `json:"score"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Profile is the per-wallet accumulation of badges, ZAPs and platform snapshots.
type Profile struct {
	Wallet            string                        `json:"wallet"`
	Badges            int                           `json:"badges"`
	ZapsScore         int64                         `json:"zaps_score"`
	ConnectedAccounts []Platform                    `json:"connected_accounts"`
	PlatformData      map[Platform]PlatformSnapshot `json:"platform_data"`
	// VerifiedAccounts maps a platform to the account id whose ownership
	// the wallet proved with a bio code.
	VerifiedAccounts map[Platform]string `json:"verified_accounts,omitempty"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// IsConnected reports whether p already appears in ConnectedAccounts.
func (p *Profile) IsConnected(platform Platform) bool {
	for _, c := range p.ConnectedAccounts {
		if c == platform {
			return true
		}
	}
	return false
}
