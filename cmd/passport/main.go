// conso passport service
//
// Fetches public statistics from YouTube, Twitch, Reddit, Discord, Roblox
// and Twitter/X, scores them 0-100 per platform and merges the results into
// per-wallet passport profiles. Exposes:
//   - the REST API (score, OAuth, verification, profiles) on PORT
//   - the gRPC health service with per-platform readiness on GRPC_PORT
//
// Publishes EVENT_SCORE_COMPUTED to Redis when REDIS_URL is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conso-labs/conso-app-sub000/internal/api"
	"github.com/conso-labs/conso-app-sub000/internal/config"
	"github.com/conso-labs/conso-app-sub000/internal/db"
	"github.com/conso-labs/conso-app-sub000/internal/fetcher"
	"github.com/conso-labs/conso-app-sub000/internal/grpcserver"
	"github.com/conso-labs/conso-app-sub000/internal/logging"
	"github.com/conso-labs/conso-app-sub000/internal/metrics"
	"github.com/conso-labs/conso-app-sub000/internal/model"
	"github.com/conso-labs/conso-app-sub000/internal/oauth"
	"github.com/conso-labs/conso-app-sub000/internal/profile"
	"github.com/conso-labs/conso-app-sub000/internal/scheduler"
	"github.com/conso-labs/conso-app-sub000/internal/scoring"
	"github.com/conso-labs/conso-app-sub000/internal/upstream"
	"github.com/conso-labs/conso-app-sub000/internal/verify"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[passport] Config error: %v", err)
	}

	_, logCloser := logging.Setup("passport", cfg.Env, cfg.LogFile)
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.Passport()

	// ── Redis (optional) ─────────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		log.Println("[passport] Connecting to Redis…")
		rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("[passport] Redis: %v", err)
		}
		defer rdb.Close()
		log.Println("[passport] Redis connected ✓")
	}

	// ── Profile store ────────────────────────────────────────────────────────
	store, closeStore, err := openProfileStore(ctx, cfg, rdb)
	if err != nil {
		log.Fatalf("[passport] Profile store (%s): %v", cfg.ProfileStore, err)
	}
	defer closeStore()
	log.Printf("[passport] Profile store: %s ✓", cfg.ProfileStore)

	var events profile.Publisher
	if rdb != nil {
		events = rdb
	}
	profiles := profile.NewService(store, events, nil)

	// ── Upstream clients ─────────────────────────────────────────────────────
	client := func(provider string) *upstream.Client {
		return upstream.New(provider, upstream.Options{
			Timeout: cfg.UpstreamTimeout,
			Retries: cfg.UpstreamRetries,
			RPS:     cfg.UpstreamRPS,
			Metrics: m,
		})
	}

	twitchTokens := oauth.TwitchCredentials(cfg, client("twitch-auth"), nil).WithMetrics(m)
	redditTokens := oauth.RedditCredentials(cfg, client("reddit-auth"), nil).WithMetrics(m)

	youtube := fetcher.NewYouTubeFetcher(cfg.YouTubeAPIKey, client("youtube"), nil)
	twitch := fetcher.NewTwitchFetcher(twitchTokens, client("twitch"), nil)
	reddit := fetcher.NewRedditFetcher(redditTokens, cfg.RedditUserAgent, client("reddit"), nil)
	discord := fetcher.NewDiscordFetcher(cfg.DiscordBotToken, client("discord"))
	roblox := fetcher.NewRobloxFetcher(client("roblox"))
	twitter := fetcher.NewTwitterFetcher(client("twitter"), nil)

	// ── OAuth ────────────────────────────────────────────────────────────────
	var pending oauth.PendingStore
	var sweeper scheduler.Sweeper
	if rdb != nil {
		pending = oauth.NewRedisPendingStore(rdb)
	} else {
		mem := oauth.NewMemoryPendingStore(nil)
		pending, sweeper = mem, mem
	}
	manager := oauth.NewManager(pending, nil,
		oauth.NewClient(oauth.Twitter(cfg), client("twitter-auth"), nil).WithMetrics(m),
		oauth.NewClient(oauth.Google(cfg), client("google-auth"), nil).WithMetrics(m),
		oauth.NewClient(oauth.Discord(cfg), client("discord-auth"), nil).WithMetrics(m),
	)

	readiness := func() map[string]error {
		out := make(map[string]error, len(model.Platforms))
		for _, p := range model.Platforms {
			out[string(p)] = cfg.PlatformCheck(string(p))
		}
		return out
	}
	for name, err := range readiness() {
		if err != nil {
			log.Printf("[passport] %s disabled: %v", name, err)
		}
	}

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched, err := scheduler.New(cfg.TokenWarmInterval, sweeper, twitchTokens, redditTokens)
	if err != nil {
		log.Fatalf("[passport] Scheduler: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[passport] Scheduler: %v", err)
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	server := api.NewServer(api.Deps{
		AppURL:     cfg.AppURL,
		Calculator: scoring.NewCalculator(nil),
		YouTube:    youtube,
		Twitch:     twitch,
		Reddit:     reddit,
		Discord:    discord,
		Roblox:     roblox,
		Twitter:    twitter,
		OAuth:      manager,
		Sessions:   api.NewSessions(cfg.CookieHashKey, cfg.CookieBlockKey, cfg.IsProduction(), nil),
		Verifier:   verify.NewVerifier(cfg.VerifySecret, roblox),
		Profiles:   profiles,
		Metrics:    m,
		Readiness:  readiness,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * cfg.UpstreamTimeout * time.Duration(cfg.UpstreamRetries+1),
	}

	go func() {
		log.Printf("[passport] v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[passport] HTTP server error: %v", err)
		}
	}()

	// ── gRPC health ──────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatalf("[passport] gRPC listen: %v", err)
	}
	grpcSrv := grpcserver.New(readiness)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Printf("[passport] gRPC server error: %v", err)
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[passport] Shutting down…")
	cancel()
	sched.Stop()
	grpcSrv.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[passport] Shutdown error: %v", err)
	}
	log.Println("[passport] Stopped.")
}

// openProfileStore connects the configured backend and returns its closer.
func openProfileStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (profile.Store, func(), error) {
	switch cfg.ProfileStore {
	case config.StoreSQLite:
		sqlDB, err := db.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s := profile.NewSQLiteStore(sqlDB)
		if err := s.EnsureSchema(ctx); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		return s, func() { sqlDB.Close() }, nil

	case config.StorePostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := profile.NewPostgresStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil

	case config.StoreRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("redis client not connected")
		}
		return profile.NewRedisStore(rdb), func() {}, nil
	}
	return profile.NewMemoryStore(), func() {}, nil
}
