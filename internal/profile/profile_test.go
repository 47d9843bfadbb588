package profile_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conso-labs/conso-app-sub000/internal/db"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
)

const wallet = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

var refNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return refNow }

type recorder struct {
	mu     sync.Mutex
	events [][]byte
	err    error
}

func (r *recorder) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if channel == profile.EventScoreComputed {
		r.events = append(r.events, message.([]byte))
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(r.err)
	return cmd
}

func score(total float64) model.ScoreResult {
	return model.ScoreResult{TotalScore: total, MaxScore: model.MaxScore, Rating: "Good"}
}

// ── NormalizeWallet ──

func TestNormalizeWallet(t *testing.T) {
	w, err := profile.NormalizeWallet("  " + wallet + " ")
	if err != nil || w != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("NormalizeWallet = %q, %v", w, err)
	}
	for _, bad := range []string{"", "  ", "ab", "has space", "semi;colon"} {
		if _, err := profile.NormalizeWallet(bad); !errors.Is(err, profile.ErrInvalidWallet) {
			t.Errorf("NormalizeWallet(%q) err = %v, want ErrInvalidWallet", bad, err)
		}
	}
}

// ── Stores ──

func exerciseStore(t *testing.T, s profile.Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, wallet); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("Get on empty store: %v", err)
	}

	p := profile.New(wallet)
	p.Badges = 2
	p.ZapsScore = 250
	p.ConnectedAccounts = []model.Platform{model.PlatformYouTube, model.PlatformReddit}
	p.PlatformData[model.PlatformYouTube] = model.PlatformSnapshot{
		Stats:     json.RawMessage(`{"channel_id":"UC1"}`),
		Score:     score(79.96),
		UpdatedAt: refNow,
	}
	p.UpdatedAt = refNow
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "0XABCDEF0123456789ABCDEF0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("Get with different case: %v", err)
	}
	if got.Wallet != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Errorf("wallet = %q, want lower case", got.Wallet)
	}
	if got.Badges != 2 || got.ZapsScore != 250 || len(got.ConnectedAccounts) != 2 {
		t.Errorf("profile = %+v", got)
	}
	snap, ok := got.PlatformData[model.PlatformYouTube]
	if !ok || snap.Score.TotalScore != 79.96 || !snap.UpdatedAt.Equal(refNow) {
		t.Errorf("snapshot = %+v", snap)
	}

	p.Badges = 3
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, _ = s.Get(ctx, wallet)
	if got.Badges != 3 {
		t.Errorf("badges after overwrite = %d, want 3", got.Badges)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, profile.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := profile.NewMemoryStore()
	if err := s.Put(ctx, profile.New(wallet)); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Get(ctx, wallet)
	p.Badges = 99
	p.ConnectedAccounts = append(p.ConnectedAccounts, model.PlatformTwitch)

	again, _ := s.Get(ctx, wallet)
	if again.Badges != 0 || len(again.ConnectedAccounts) != 0 {
		t.Errorf("stored profile was mutated through a returned copy: %+v", again)
	}
}

func TestRedisStore(t *testing.T) {
	rdb := newFakeRedis()
	exerciseStore(t, profile.NewRedisStore(rdb))
	if _, ok := rdb.vals["passport:profile:0xabcdef0123456789abcdef0123456789abcdef01"]; !ok {
		t.Errorf("keys = %v, want lower-case wallet key", rdb.keys())
	}
}

func TestRedisStore_Error(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	s := profile.NewRedisStore(rdb)
	if _, err := s.Get(context.Background(), wallet); err == nil || errors.Is(err, profile.ErrNotFound) {
		t.Errorf("Get = %v, want a non-NotFound error", err)
	}
	if err := s.Put(context.Background(), profile.New(wallet)); err == nil {
		t.Error("Put should surface the redis error")
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := db.NewSQLite(ctx, filepath.Join(t.TempDir(), "passport.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	s := profile.NewSQLiteStore(sqlDB)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema is not idempotent: %v", err)
	}
	exerciseStore(t, s)
}

// ── Service.ApplyScore ──

func TestApplyScore_FirstConnectionAndUpdate(t *testing.T) {
	ctx := context.Background()
	events := &recorder{}
	svc := profile.NewService(profile.NewMemoryStore(), events, clock)

	p, err := svc.ApplyScore(ctx, wallet, model.PlatformYouTube, model.YouTubeStats{ChannelID: "UC1"}, score(79.96))
	if err != nil {
		t.Fatalf("ApplyScore: %v", err)
	}
	if p.Badges != 1 || p.ZapsScore != 180 {
		t.Errorf("after first connect badges=%d zaps=%d, want 1 and 180", p.Badges, p.ZapsScore)
	}
	if !p.IsConnected(model.PlatformYouTube) {
		t.Error("youtube should be connected")
	}

	p, err = svc.ApplyScore(ctx, wallet, model.PlatformYouTube, model.YouTubeStats{ChannelID: "UC1"}, score(42.4))
	if err != nil {
		t.Fatalf("second ApplyScore: %v", err)
	}
	if p.Badges != 1 || p.ZapsScore != 222 {
		t.Errorf("after update badges=%d zaps=%d, want 1 and 222", p.Badges, p.ZapsScore)
	}
	if len(p.ConnectedAccounts) != 1 {
		t.Errorf("connected = %v, want one entry", p.ConnectedAccounts)
	}
	if p.PlatformData[model.PlatformYouTube].Score.TotalScore != 42.4 {
		t.Errorf("snapshot not replaced: %+v", p.PlatformData[model.PlatformYouTube])
	}

	var stats model.YouTubeStats
	if err := json.Unmarshal(p.PlatformData[model.PlatformYouTube].Stats, &stats); err != nil || stats.ChannelID != "UC1" {
		t.Errorf("stored stats = %s, %v", p.PlatformData[model.PlatformYouTube].Stats, err)
	}

	if len(events.events) != 2 {
		t.Fatalf("published %d events, want 2", len(events.events))
	}
	var ev map[string]any
	if err := json.Unmarshal(events.events[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev["type"] != profile.EventScoreComputed || ev["platform"] != "youtube" || ev["zapsEarned"] != float64(42) {
		t.Errorf("event = %v", ev)
	}
}

func TestApplyScore_SecondPlatformEarnsBadge(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(profile.NewMemoryStore(), nil, clock)

	if _, err := svc.ApplyScore(ctx, wallet, model.PlatformReddit, model.RedditStats{}, score(0)); err != nil {
		t.Fatal(err)
	}
	p, err := svc.ApplyScore(ctx, wallet, model.PlatformTwitch, model.TwitchStats{}, score(10.5))
	if err != nil {
		t.Fatal(err)
	}
	if p.Badges != 2 || p.ZapsScore != 100+100+11 {
		t.Errorf("badges=%d zaps=%d", p.Badges, p.ZapsScore)
	}
}

func TestApplyScore_PublishFailureIsNotFatal(t *testing.T) {
	svc := profile.NewService(profile.NewMemoryStore(), &recorder{err: errors.New("redis down")}, clock)
	if _, err := svc.ApplyScore(context.Background(), wallet, model.PlatformRoblox, model.RobloxStats{}, score(5)); err != nil {
		t.Errorf("ApplyScore should ignore publish errors, got %v", err)
	}
}

func TestApplyScore_InvalidWallet(t *testing.T) {
	svc := profile.NewService(profile.NewMemoryStore(), nil, clock)
	_, err := svc.ApplyScore(context.Background(), "", model.PlatformRoblox, model.RobloxStats{}, score(5))
	if !errors.Is(err, profile.ErrInvalidWallet) {
		t.Errorf("err = %v", err)
	}
}

// ── Service.MarkVerified ──

func TestMarkVerified(t *testing.T) {
	ctx := context.Background()
	svc := profile.NewService(profile.NewMemoryStore(), nil, clock)

	ok, err := svc.IsVerified(ctx, wallet, model.PlatformRoblox, "156")
	if err != nil || ok {
		t.Fatalf("IsVerified before marking = %v, %v", ok, err)
	}

	p, err := svc.MarkVerified(ctx, wallet, model.PlatformRoblox, " 156 ")
	if err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	if p.Badges != 0 || p.ZapsScore != 0 || len(p.ConnectedAccounts) != 0 {
		t.Errorf("marking must not credit anything: %+v", p)
	}

	for account, want := range map[string]bool{"156": true, "157": false, "": false} {
		ok, err := svc.IsVerified(ctx, strings.ToUpper(wallet), model.PlatformRoblox, account)
		if err != nil || ok != want {
			t.Errorf("IsVerified(%q) = %v, %v; want %v", account, ok, err, want)
		}
	}
	if ok, _ := svc.IsVerified(ctx, wallet, model.PlatformTwitch, "156"); ok {
		t.Error("verification must not carry over to another platform")
	}

	// a later score keeps the proof
	if _, err := svc.ApplyScore(ctx, wallet, model.PlatformRoblox, map[string]int{"user_id": 156}, score(40)); err != nil {
		t.Fatalf("ApplyScore: %v", err)
	}
	if ok, _ := svc.IsVerified(ctx, wallet, model.PlatformRoblox, "156"); !ok {
		t.Error("ApplyScore dropped the verified account")
	}
}

func TestMarkVerified_Invalid(t *testing.T) {
	svc := profile.NewService(profile.NewMemoryStore(), nil, clock)
	if _, err := svc.MarkVerified(context.Background(), "x", model.PlatformRoblox, "1"); !errors.Is(err, profile.ErrInvalidWallet) {
		t.Errorf("bad wallet: %v", err)
	}
	var verr *profile.ValidationError
	if _, err := svc.MarkVerified(context.Background(), wallet, model.PlatformRoblox, " "); !errors.As(err, &verr) {
		t.Errorf("empty account: %v", err)
	}
}
