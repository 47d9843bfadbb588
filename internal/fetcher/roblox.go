package fetcher

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
)

var robloxUsername = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// RobloxFetcher reads public profile and social counts. No credentials are
// needed.
type RobloxFetcher struct {
	UsersURL   string
	FriendsURL string
	GroupsURL  string
	http       *upstream.Client
}

func NewRobloxFetcher(hc *upstream.Client) *RobloxFetcher {
	return &RobloxFetcher{
		UsersURL:   "https://users.roblox.com",
		FriendsURL: "https://friends.roblox.com",
		GroupsURL:  "https://groups.roblox.com",
		http:       hc,
	}
}

type robloxLookupRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type robloxLookupResponse struct {
	Data []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

type robloxUser struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	DisplayName      string    `json:"displayName"`
	Description      string    `json:"description"`
	Created          time.Time `json:"created"`
	IsBanned         bool      `json:"isBanned"`
	HasVerifiedBadge bool      `json:"hasVerifiedBadge"`
}

type robloxCount struct {
	Count int64 `json:"count"`
}

type robloxGroupRoles struct {
	Data []struct {
		Group struct {
			ID int64 `json:"id"`
		} `json:"group"`
	} `json:"data"`
}

// GetStats resolves a username, then fetches the profile and its social
// counts. Counts are fetched concurrently.
func (f *RobloxFetcher) GetStats(ctx context.Context, username string) (*model.RobloxStats, error) {
	username = strings.TrimSpace(username)
	if !robloxUsername.MatchString(username) {
		return nil, ErrInvalidIdentifier
	}

	var lookup robloxLookupResponse
	req := robloxLookupRequest{Usernames: []string{username}}
	if err := f.http.PostJSON(ctx, f.UsersURL+"/v1/usernames/users", nil, req, &lookup); err != nil {
		return nil, err
	}
	if len(lookup.Data) == 0 {
		return nil, nil
	}
	id := lookup.Data[0].ID
	if id <= 0 {
		return nil, upstream.Malformed("roblox", "user without id")
	}
	uid := strconv.FormatInt(id, 10)

	var user robloxUser
	err := f.http.GetJSON(ctx, f.UsersURL+"/v1/users/"+uid, nil, &user)
	if upstream.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	stats := &model.RobloxStats{
		UserID:           user.ID,
		Username:         user.Name,
		DisplayName:      user.DisplayName,
		Description:      user.Description,
		CreatedAt:        user.Created,
		HasVerifiedBadge: user.HasVerifiedBadge,
		IsBanned:         user.IsBanned,
	}

	var friends, followers, followings robloxCount
	var groups robloxGroupRoles
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return f.http.GetJSON(gctx, f.FriendsURL+"/v1/users/"+uid+"/friends/count", nil, &friends)
	})
	g.Go(func() error {
		return f.http.GetJSON(gctx, f.FriendsURL+"/v1/users/"+uid+"/followers/count", nil, &followers)
	})
	g.Go(func() error {
		return f.http.GetJSON(gctx, f.FriendsURL+"/v1/users/"+uid+"/followings/count", nil, &followings)
	})
	g.Go(func() error {
		return f.http.GetJSON(gctx, f.GroupsURL+"/v2/users/"+uid+"/groups/roles", nil, &groups)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.FriendCount = friends.Count
	stats.FollowerCount = followers.Count
	stats.FollowingCount = followings.Count
	stats.GroupCount = len(groups.Data)
	return stats, nil
}
