package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conso-labs/conso-app-sub000/internal/config"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

const (
	youtubeBaseURL  = "https://www.googleapis.com/youtube/v3"
	youtubePageSize = 50
)

// YouTubeFetcher reads channel and upload statistics from the Data API v3.
type YouTubeFetcher struct {
	APIKey  string
	BaseURL string
	http    *upstream.Client
	now     func() time.Time
}

func NewYouTubeFetcher(apiKey string, hc *upstream.Client, now func() time.Time) *YouTubeFetcher {
	return &YouTubeFetcher{APIKey: apiKey, BaseURL: youtubeBaseURL, http: hc, now: nowOrDefault(now)}
}

// YouTubeOptions selects user-authorised access. With Mine set the channel of
// the token owner is used and the identifier is ignored.
type YouTubeOptions struct {
	AccessToken string
	Mine        bool
}

type ytChannelList struct {
	Items []ytChannel `json:"items"`
}

type ytChannel struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string    `json:"title"`
		CustomURL   string    `json:"customUrl"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount             int64 `json:"viewCount,string"`
		SubscriberCount       int64 `json:"subscriberCount,string"`
		HiddenSubscriberCount bool  `json:"hiddenSubscriberCount"`
		VideoCount            int64 `json:"videoCount,string"`
	} `json:"statistics"`
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string `json:"uploads"`
		} `json:"relatedPlaylists"`
	} `json:"contentDetails"`
}

type ytPlaylistItems struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ContentDetails struct {
			VideoID          string    `json:"videoId"`
			VideoPublishedAt time.Time `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type ytVideoList struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    int64 `json:"viewCount,string"`
			LikeCount    int64 `json:"likeCount,string"`
			CommentCount int64 `json:"commentCount,string"`
		} `json:"statistics"`
	} `json:"items"`
}

type ytUpload struct {
	videoID     string
	publishedAt time.Time
}

// GetStats resolves a channel (@handle, channel id, legacy username or
// channel URL) and aggregates its most recent uploads.
func (f *YouTubeFetcher) GetStats(ctx context.Context, identifier string, opts YouTubeOptions) (*model.YouTubeStats, error) {
	if opts.AccessToken == "" {
		if err := config.Require("YOUTUBE_API_KEY", f.APIKey); err != nil {
			return nil, err
		}
	}

	ch, err := f.resolveChannel(ctx, identifier, opts)
	if err != nil || ch == nil {
		return nil, err
	}
	if ch.ID == "" {
		return nil, upstream.Malformed("youtube", "channel without id")
	}

	stats := &model.YouTubeStats{
		ChannelID:             ch.ID,
		Title:                 ch.Snippet.Title,
		Handle:                ch.Snippet.CustomURL,
		CreatedAt:             ch.Snippet.PublishedAt,
		SubscriberCount:       ch.Statistics.SubscriberCount,
		HiddenSubscriberCount: ch.Statistics.HiddenSubscriberCount,
		VideoCount:            ch.Statistics.VideoCount,
		ViewCount:             ch.Statistics.ViewCount,
	}
	if stats.VideoCount > 0 {
		stats.AverageViewsPerVideo = float64(stats.ViewCount) / float64(stats.VideoCount)
	}

	uploads := ch.ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" || stats.VideoCount == 0 {
		return stats, nil
	}
	items, err := f.recentUploads(ctx, uploads, opts)
	if err != nil {
		return nil, err
	}

	now := f.now()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.videoID)
		if inWindow(it.publishedAt, now) {
			stats.RecentUploadFrequency++
		}
	}

	videos, err := f.videoStats(ctx, ids, opts)
	if err != nil {
		return nil, err
	}
	var rateSum float64
	var rated int
	for _, v := range videos.Items {
		s := v.Statistics
		if s.ViewCount > stats.PeakVideoViews {
			stats.PeakVideoViews = s.ViewCount
		}
		if s.ViewCount > 0 {
			rateSum += float64(s.LikeCount+s.CommentCount) / float64(s.ViewCount) * 100
			rated++
		}
	}
	stats.SampledVideos = len(videos.Items)
	if rated > 0 {
		stats.EngagementRate = rateSum / float64(rated)
	}
	return stats, nil
}

func (f *YouTubeFetcher) resolveChannel(ctx context.Context, identifier string, opts YouTubeOptions) (*ytChannel, error) {
	base := url.Values{}
	base.Set("part", "snippet,statistics,contentDetails")

	var lookups []url.Values
	if opts.Mine {
		q := cloneValues(base)
		q.Set("mine", "true")
		lookups = append(lookups, q)
	} else {
		id := normaliseChannelIdentifier(identifier)
		if id == "" {
			return nil, ErrInvalidIdentifier
		}
		switch {
		case strings.HasPrefix(id, "@"):
			q := cloneValues(base)
			q.Set("forHandle", id)
			lookups = append(lookups, q)
		case strings.HasPrefix(id, "UC") && len(id) == 24:
			q := cloneValues(base)
			q.Set("id", id)
			lookups = append(lookups, q)
		default:
			byName := cloneValues(base)
			byName.Set("forUsername", id)
			byHandle := cloneValues(base)
			byHandle.Set("forHandle", "@"+id)
			lookups = append(lookups, byName, byHandle)
		}
	}

	for _, q := range lookups {
		var list ytChannelList
		err := f.get(ctx, "/channels", q, opts, &list)
		if upstream.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(list.Items) > 0 {
			return &list.Items[0], nil
		}
	}
	return nil, nil
}

func (f *YouTubeFetcher) recentUploads(ctx context.Context, playlistID string, opts YouTubeOptions) ([]ytUpload, error) {
	var out []ytUpload
	pageToken := ""
	for len(out) < sampleCap {
		q := url.Values{}
		q.Set("part", "contentDetails")
		q.Set("playlistId", playlistID)
		q.Set("maxResults", "50")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page ytPlaylistItems
		err := f.get(ctx, "/playlistItems", q, opts, &page)
		if upstream.IsNotFound(err) {
			// uploads playlist is missing for channels without public videos
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			if it.ContentDetails.VideoID == "" || len(out) >= sampleCap {
				continue
			}
			out = append(out, ytUpload{videoID: it.ContentDetails.VideoID, publishedAt: it.ContentDetails.VideoPublishedAt})
		}
		if page.NextPageToken == "" || len(page.Items) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}
	return out, nil
}

func (f *YouTubeFetcher) videoStats(ctx context.Context, ids []string, opts YouTubeOptions) (ytVideoList, error) {
	var all ytVideoList
	for start := 0; start < len(ids); start += youtubePageSize {
		end := min(start+youtubePageSize, len(ids))
		q := url.Values{}
		q.Set("part", "statistics")
		q.Set("id", strings.Join(ids[start:end], ","))
		q.Set("maxResults", "50")
		var batch ytVideoList
		if err := f.get(ctx, "/videos", q, opts, &batch); err != nil {
			return ytVideoList{}, err
		}
		all.Items = append(all.Items, batch.Items...)
	}
	return all, nil
}

func (f *YouTubeFetcher) get(ctx context.Context, path string, q url.Values, opts YouTubeOptions, out any) error {
	header := http.Header{}
	if opts.AccessToken != "" {
		header.Set("Authorization", upstream.Bearer(opts.AccessToken))
	} else {
		q.Set("key", f.APIKey)
	}
	return f.http.GetJSON(ctx, f.BaseURL+path+"?"+q.Encode(), header, out)
}

// normaliseChannelIdentifier accepts bare ids and handles as well as
// youtube.com channel URLs.
func normaliseChannelIdentifier(s string) string {
	s = strings.TrimSpace(s)
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		s = strings.Trim(u.Path, "/")
		for _, prefix := range []string{"channel/", "user/", "c/"} {
			if strings.HasPrefix(s, prefix) {
				s = strings.TrimPrefix(s, prefix)
				break
			}
		}
		if i := strings.Index(s, "/"); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
