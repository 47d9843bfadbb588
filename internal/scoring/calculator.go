// Package scoring turns platform stats into a 0-100 reputation score.
//
// Every calculator is a pure reduction over a stats snapshot. Each sub-score
// is rounded to two decimals and the total is the rounded sum of those
// rounded values.
package scoring

import (
	"fmt"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/model"
)

// Weight is the cap of one sub-metric.
type Weight struct {
	Name string
	Cap  float64
}

var weights = map[model.Platform][]Weight{
	model.PlatformYouTube: {
		{"subscribers", 30},
		{"video_count", 15},
		{"engagement", 25},
		{"upload_frequency", 15},
		{"avg_views", 15},
	},
	model.PlatformTwitch: {
		{"followers", 30},
		{"stream_frequency", 20},
		{"stream_duration", 15},
		{"avg_viewers", 20},
		{"broadcaster_status", 15},
	},
	model.PlatformReddit: {
		{"karma", 30},
		{"account_age", 15},
		{"activity", 20},
		{"engagement", 20},
		{"status", 15},
	},
	model.PlatformDiscord: {
		{"account_age", 25},
		{"profile", 20},
		{"server_reach", 25},
		{"server_activity", 15},
		{"membership", 15},
	},
	model.PlatformTwitter: {
		{"followers", 30},
		{"tweet_frequency", 20},
		{"engagement", 25},
		{"listed", 10},
		{"profile", 15},
	},
	model.PlatformRoblox: {
		{"account_age", 30},
		{"friends", 20},
		{"followers", 25},
		{"groups", 15},
		{"profile", 10},
	},
}

// Weights returns a copy of a platform's sub-metric caps in display order.
func Weights(p model.Platform) []Weight {
	return append([]Weight(nil), weights[p]...)
}

func capOf(p model.Platform, name string) float64 {
	for _, w := range weights[p] {
		if w.Name == name {
			return w.Cap
		}
	}
	return 0
}

// Calculator scores stats snapshots. Account-age metrics are measured
// against now.
type Calculator struct {
	now func() time.Time
}

// NewCalculator returns a calculator using now as its reference clock; a nil
// clock means time.Now.
func NewCalculator(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{now: now}
}

// sheet accumulates rounded sub-scores for one platform.
type sheet struct {
	platform  model.Platform
	breakdown model.Breakdown
}

func newSheet(p model.Platform) *sheet {
	return &sheet{platform: p, breakdown: make(model.Breakdown, 0, len(weights[p]))}
}

func (s *sheet) add(name string, v float64) {
	s.breakdown = append(s.breakdown, model.SubScore{Name: name, Score: Round2(v)})
}

func (s *sheet) result() model.ScoreResult {
	total := Round2(s.breakdown.Sum())
	return model.ScoreResult{
		TotalScore: total,
		MaxScore:   model.MaxScore,
		Breakdown:  s.breakdown,
		Rating:     Ratings(s.platform).Rate(total),
	}
}

func (c *Calculator) daysSince(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	d := c.now().Sub(t)
	if d <= 0 {
		return 0
	}
	return d.Hours() / 24
}

// YouTube scores a channel.
func (c *Calculator) YouTube(st model.YouTubeStats) model.ScoreResult {
	p := model.PlatformYouTube
	s := newSheet(p)
	s.add("subscribers", LogScale(float64(st.SubscriberCount), capOf(p, "subscribers"), 7))
	s.add("video_count", LinearScale(float64(st.VideoCount), 100, capOf(p, "video_count")))
	s.add("engagement", LinearScale(st.EngagementRate, 10, capOf(p, "engagement")))
	s.add("upload_frequency", LinearScale(float64(st.RecentUploadFrequency), 10, capOf(p, "upload_frequency")))
	s.add("avg_views", LogScale(st.AverageViewsPerVideo, capOf(p, "avg_views"), 6))
	return s.result()
}

// Twitch scores a broadcaster.
func (c *Calculator) Twitch(st model.TwitchStats) model.ScoreResult {
	p := model.PlatformTwitch
	s := newSheet(p)
	s.add("followers", LogScale(float64(st.FollowerCount), capOf(p, "followers"), 6))
	s.add("stream_frequency", LinearScale(float64(st.StreamsLast30Days), 20, capOf(p, "stream_frequency")))
	s.add("stream_duration", BandScale(st.AvgStreamDurationMinutes, 120, 240, 480, 0.5, capOf(p, "stream_duration")))
	s.add("avg_viewers", LogScale(st.AvgVODViews, capOf(p, "avg_viewers"), 5))
	s.add("broadcaster_status", Bonus(capOf(p, "broadcaster_status"),
		Award{On: st.BroadcasterType == "partner", Points: 12},
		Award{On: st.BroadcasterType == "affiliate", Points: 6},
		Award{On: st.Description != "", Points: 3},
	))
	return s.result()
}

// Reddit scores a Reddit account.
func (c *Calculator) Reddit(st model.RedditStats) model.ScoreResult {
	p := model.PlatformReddit
	s := newSheet(p)
	s.add("karma", LogScale(float64(st.TotalKarma), capOf(p, "karma"), 6))
	s.add("account_age", LinearScale(c.daysSince(st.CreatedAt), 3650, capOf(p, "account_age")))
	s.add("activity", LinearScale(float64(st.PostsLast30Days+st.CommentsLast30Days), 60, capOf(p, "activity")))
	s.add("engagement", LinearScale(st.AverageScore, 50, capOf(p, "engagement")))
	s.add("status", Bonus(capOf(p, "status"),
		Award{On: st.IsGold, Points: 5},
		Award{On: st.IsMod, Points: 5},
		Award{On: st.HasVerifiedEmail, Points: 3},
		Award{On: st.IsEmployee, Points: 2},
	))
	return s.result()
}

// Discord premium_type values.
const (
	discordNitroClassic = 1
	discordNitro        = 2
	discordNitroBasic   = 3
)

const maxDiscordBadges = 5

// Discord scores a Discord user and, when present, their guild membership.
func (c *Calculator) Discord(st model.DiscordStats) model.ScoreResult {
	p := model.PlatformDiscord
	s := newSheet(p)
	s.add("account_age", LinearScale(c.daysSince(st.CreatedAt), 2920, capOf(p, "account_age")))

	badges := min(st.BadgeCount, maxDiscordBadges)
	s.add("profile", Bonus(capOf(p, "profile"),
		Award{On: st.PremiumType == discordNitro, Points: 10},
		Award{On: st.PremiumType == discordNitroClassic, Points: 6},
		Award{On: st.PremiumType == discordNitroBasic, Points: 4},
		Award{On: st.Verified, Points: 4},
		Award{On: badges > 0, Points: 3 * float64(badges)},
	))

	var members, presenceRatio float64
	if g := st.Guild; g != nil {
		members = float64(g.MemberCount)
		if g.MemberCount > 0 {
			presenceRatio = float64(g.PresenceCount) / float64(g.MemberCount)
		}
	}
	s.add("server_reach", LogScale(members, capOf(p, "server_reach"), 5))
	s.add("server_activity", LinearScale(presenceRatio, 0.5, capOf(p, "server_activity")))

	var tenure float64
	if m := st.Member; m != nil {
		tenure = c.daysSince(m.JoinedAt)
	}
	s.add("membership", LinearScale(tenure, 730, capOf(p, "membership")))
	return s.result()
}

// Twitter scores a Twitter/X account.
func (c *Calculator) Twitter(st model.TwitterStats) model.ScoreResult {
	p := model.PlatformTwitter
	s := newSheet(p)
	s.add("followers", LogScale(float64(st.FollowersCount), capOf(p, "followers"), 7))
	s.add("tweet_frequency", LinearScale(float64(st.TweetsLast30Days), 60, capOf(p, "tweet_frequency")))
	s.add("engagement", LinearScale(st.EngagementRate, 5, capOf(p, "engagement")))
	s.add("listed", LogScale(float64(st.ListedCount), capOf(p, "listed"), 4))
	s.add("profile", Bonus(capOf(p, "profile"),
		Award{On: st.Verified, Points: 10},
		Award{On: st.URL != "", Points: 3},
		Award{On: st.Description != "", Points: 2},
	))
	return s.result()
}

// Roblox scores a Roblox account.
func (c *Calculator) Roblox(st model.RobloxStats) model.ScoreResult {
	p := model.PlatformRoblox
	s := newSheet(p)
	s.add("account_age", LinearScale(c.daysSince(st.CreatedAt), 3650, capOf(p, "account_age")))
	s.add("friends", LogScale(float64(st.FriendCount), capOf(p, "friends"), 2.3))
	s.add("followers", LogScale(float64(st.FollowerCount), capOf(p, "followers"), 6))
	s.add("groups", LinearScale(float64(st.GroupCount), 20, capOf(p, "groups")))
	s.add("profile", Bonus(capOf(p, "profile"),
		Award{On: st.HasVerifiedBadge, Points: 7},
		Award{On: st.Description != "", Points: 3},
	))
	return s.result()
}

// Calculate scores any platform stats snapshot, by value or pointer.
func (c *Calculator) Calculate(stats any) (model.Platform, model.ScoreResult, error) {
	switch st := stats.(type) {
	case model.YouTubeStats:
		return model.PlatformYouTube, c.YouTube(st), nil
	case *model.YouTubeStats:
		return c.Calculate(deref(st))
	case model.TwitchStats:
		return model.PlatformTwitch, c.Twitch(st), nil
	case *model.TwitchStats:
		return c.Calculate(deref(st))
	case model.RedditStats:
		return model.PlatformReddit, c.Reddit(st), nil
	case *model.RedditStats:
		return c.Calculate(deref(st))
	case model.DiscordStats:
		return model.PlatformDiscord, c.Discord(st), nil
	case *model.DiscordStats:
		return c.Calculate(deref(st))
	case model.TwitterStats:
		return model.PlatformTwitter, c.Twitter(st), nil
	case *model.TwitterStats:
		return c.Calculate(deref(st))
	case model.RobloxStats:
		return model.PlatformRoblox, c.Roblox(st), nil
	case *model.RobloxStats:
		return c.Calculate(deref(st))
	}
	return "", model.ScoreResult{}, fmt.Errorf("no calculator for %T", stats)
}

// deref turns a nil pointer into an untyped nil so Calculate reports it.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
