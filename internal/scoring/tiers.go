package scoring

import "github.com/conso-labs/conso-app-sub000/internal/model"

// Tier is a rating label with an inclusive lower bound.
type Tier struct {
	Min   float64
	Label string
}

// Tiers is a rating table ordered from the highest bound down.
type Tiers []Tier

// Rate returns the label of the first tier whose bound total reaches. Totals
// below every bound get the last label.
func (t Tiers) Rate(total float64) string {
	if len(t) == 0 {
		return ""
	}
	for _, tier := range t {
		if total >= tier.Min {
			return tier.Label
		}
	}
	return t[len(t)-1].Label
}

var ratings = map[model.Platform]Tiers{
	model.PlatformYouTube: {
		{75, "Excellent"},
		{55, "Very Good"},
		{35, "Good"},
		{15, "Fair"},
		{0, "Beginner"},
	},
	model.PlatformTwitch: {
		{80, "Elite Streamer"},
		{60, "Established Streamer"},
		{40, "Rising Streamer"},
		{20, "Casual Streamer"},
		{0, "New Streamer"},
	},
	model.PlatformReddit: {
		{80, "Reddit Legend"},
		{60, "Power User"},
		{40, "Active Redditor"},
		{20, "Casual Redditor"},
		{0, "New Redditor"},
	},
	model.PlatformDiscord: {
		{80, "Discord Legend"},
		{60, "Community Pillar"},
		{40, "Active Member"},
		{20, "Regular"},
		{0, "Newcomer"},
	},
	model.PlatformTwitter: {
		{80, "Influencer"},
		{60, "Established Voice"},
		{40, "Active Tweeter"},
		{20, "Casual Tweeter"},
		{0, "New Tweeter"},
	},
	model.PlatformRoblox: {
		{80, "Roblox Veteran"},
		{60, "Seasoned Player"},
		{40, "Active Player"},
		{20, "Casual Player"},
		{0, "New Player"},
	},
}

// Ratings returns the rating table of a platform.
func Ratings(p model.Platform) Tiers {
	return ratings[p]
}
