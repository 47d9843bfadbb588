package fetcher

import (
	"context"
	"math/bits"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/config"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

const (
	discordBaseURL = "https://discord.com/api/v10"
	// discordEpochMillis is 2015-01-01T00:00:00Z, the snowflake epoch.
	discordEpochMillis = 1420070400000
)

// DiscordFetcher reads users with a bot token, or the current user with
// their own OAuth token, plus optional guild context.
type DiscordFetcher struct {
	BotToken string
	BaseURL  string
	http     *upstream.Client
}

func NewDiscordFetcher(botToken string, hc *upstream.Client) *DiscordFetcher {
	return &DiscordFetcher{BotToken: botToken, BaseURL: discordBaseURL, http: hc}
}

// DiscordOptions adds a guild to inspect and, for the @me lookup, the user's
// access token.
type DiscordOptions struct {
	GuildID     string
	AccessToken string
}

type discordUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	GlobalName  string `json:"global_name"`
	PremiumType int    `json:"premium_type"`
	PublicFlags int64  `json:"public_flags"`
	Verified    bool   `json:"verified"`
}

type discordGuild struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	ApproximateMemberCount   int64  `json:"approximate_member_count"`
	ApproximatePresenceCount int64  `json:"approximate_presence_count"`
	PremiumTier              int    `json:"premium_tier"`
	PremiumSubscriptionCount int64  `json:"premium_subscription_count"`
}

type discordMember struct {
	JoinedAt time.Time `json:"joined_at"`
	Roles    []string  `json:"roles"`
	Nick     string    `json:"nick"`
}

// GetStats fetches a user by snowflake id. With opts.AccessToken set the
// token owner is fetched instead and userID is ignored.
func (f *DiscordFetcher) GetStats(ctx context.Context, userID string, opts DiscordOptions) (*model.DiscordStats, error) {
	var user discordUser
	if opts.AccessToken != "" {
		h := http.Header{"Authorization": {upstream.Bearer(opts.AccessToken)}}
		if err := f.http.GetJSON(ctx, f.BaseURL+"/users/@me", h, &user); err != nil {
			return nil, err
		}
	} else {
		if err := config.Require("DISCORD_BOT_TOKEN", f.BotToken); err != nil {
			return nil, err
		}
		userID = strings.TrimSpace(userID)
		if !isSnowflake(userID) {
			return nil, ErrInvalidIdentifier
		}
		err := f.http.GetJSON(ctx, f.BaseURL+"/users/"+userID, f.botHeader(), &user)
		if upstream.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
	if user.ID == "" {
		return nil, upstream.Malformed("discord", "user without id")
	}

	stats := &model.DiscordStats{
		UserID:      user.ID,
		Username:    user.Username,
		GlobalName:  user.GlobalName,
		CreatedAt:   SnowflakeTime(user.ID),
		PremiumType: user.PremiumType,
		PublicFlags: user.PublicFlags,
		BadgeCount:  bits.OnesCount64(uint64(user.PublicFlags)),
		Verified:    user.Verified,
	}

	gid := strings.TrimSpace(opts.GuildID)
	if gid == "" || f.BotToken == "" || !isSnowflake(gid) {
		return stats, nil
	}

	var guild discordGuild
	ok, err := f.optional(ctx, "/guilds/"+gid+"?with_counts=true", &guild)
	if err != nil {
		return nil, err
	}
	if !ok {
		return stats, nil
	}
	stats.Guild = &model.DiscordGuildStats{
		ID:            guild.ID,
		Name:          guild.Name,
		MemberCount:   guild.ApproximateMemberCount,
		PresenceCount: guild.ApproximatePresenceCount,
		PremiumTier:   guild.PremiumTier,
		BoostCount:    guild.PremiumSubscriptionCount,
	}

	var member discordMember
	ok, err = f.optional(ctx, "/guilds/"+gid+"/members/"+user.ID, &member)
	if err != nil {
		return nil, err
	}
	if ok {
		stats.Member = &model.DiscordMemberStats{
			JoinedAt:  member.JoinedAt,
			RoleCount: len(member.Roles),
			Nickname:  member.Nick,
		}
	}
	return stats, nil
}

// optional fetches a guild sub-resource; 403 and 404 mean the bot cannot see
// it and leave it absent.
func (f *DiscordFetcher) optional(ctx context.Context, path string, out any) (bool, error) {
	err := f.http.GetJSON(ctx, f.BaseURL+path, f.botHeader(), out)
	switch upstream.StatusOf(err) {
	case http.StatusForbidden, http.StatusNotFound:
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *DiscordFetcher) botHeader() http.Header {
	return http.Header{"Authorization": {"Bot " + f.BotToken}}
}

// SnowflakeTime decodes the creation time embedded in a Discord id.
func SnowflakeTime(id string) time.Time {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(n>>22) + discordEpochMillis).UTC()
}

func isSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
