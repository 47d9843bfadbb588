// Package config loads and validates environment variables at startup.
// Fail-fast: malformed values stop the process. Provider credentials are
// optional here and checked by each provider when it is used.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// Profile store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// OAuthClient holds the credentials of one OAuth application.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Config holds all runtime configuration for the passport service.
type Config struct {
	Port          string
	GRPCPort      string
	AppURL        string // browser app, target of OAuth redirects
	PublicBaseURL string // this service, used to build callback URLs
	Env           string
	LogFile       string

	CookieHashKey  []byte
	CookieBlockKey []byte
	VerifySecret   []byte

	ProfileStore string
	DatabaseURL  string
	RedisURL     string
	SQLitePath   string

	UpstreamTimeout   time.Duration
	UpstreamRetries   int
	UpstreamRPS       float64
	TokenWarmInterval time.Duration

	YouTubeAPIKey   string
	Twitch          OAuthClient
	Reddit          OAuthClient
	RedditUserAgent string
	DiscordBotToken string
	Discord         OAuthClient
	Twitter         OAuthClient
	Google          OAuthClient
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		GRPCPort:        getenv("GRPC_PORT", "9090"),
		AppURL:          strings.TrimRight(getenv("APP_URL", "http://localhost:3000"), "/"),
		Env:             getenv("APP_ENV", "development"),
		LogFile:         os.Getenv("LOG_FILE"),
		ProfileStore:    getenv("PROFILE_STORE", StoreMemory),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		SQLitePath:      getenv("SQLITE_PATH", "passport.db"),
		YouTubeAPIKey:   os.Getenv("YOUTUBE_API_KEY"),
		Twitch:          oauthClient("TWITCH"),
		Reddit:          oauthClient("REDDIT"),
		RedditUserAgent: getenv("REDDIT_USER_AGENT", "conso-passport/1.0"),
		DiscordBotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		Discord:         oauthClient("DISCORD"),
		Twitter:         oauthClient("TWITTER"),
		Google:          oauthClient("GOOGLE"),
	}
	cfg.PublicBaseURL = strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port), "/")

	var err error
	if cfg.UpstreamTimeout, err = durationEnv("UPSTREAM_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenWarmInterval, err = durationEnv("TOKEN_WARM_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}

	cfg.UpstreamRetries = 2
	if s := os.Getenv("UPSTREAM_RETRIES"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 || v > 5 {
			return nil, fmt.Errorf("UPSTREAM_RETRIES must be an integer between 0 and 5, got %q", s)
		}
		cfg.UpstreamRetries = v
	}

	cfg.UpstreamRPS = 5
	if s := os.Getenv("UPSTREAM_RPS"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("UPSTREAM_RPS must be a positive number, got %q", s)
		}
		cfg.UpstreamRPS = v
	}

	switch cfg.ProfileStore {
	case StoreMemory, StoreSQLite:
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when PROFILE_STORE=redis")
		}
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when PROFILE_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("PROFILE_STORE must be one of memory, sqlite, redis, postgres, got %q", cfg.ProfileStore)
	}

	if err := cfg.loadSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSecrets reads cookie and verification keys. Outside production a
// missing key is replaced by a random one, which invalidates sessions on
// restart.
func (c *Config) loadSecrets() error {
	c.CookieHashKey = []byte(os.Getenv("COOKIE_HASH_KEY"))
	c.CookieBlockKey = []byte(os.Getenv("COOKIE_BLOCK_KEY"))
	c.VerifySecret = []byte(os.Getenv("VERIFY_CODE_SECRET"))

	if c.IsProduction() {
		for name, v := range map[string][]byte{
			"COOKIE_HASH_KEY":    c.CookieHashKey,
			"COOKIE_BLOCK_KEY":   c.CookieBlockKey,
			"VERIFY_CODE_SECRET": c.VerifySecret,
		} {
			if len(v) == 0 {
				return fmt.Errorf("%s is required in production", name)
			}
		}
	}

	if len(c.CookieHashKey) == 0 {
		c.CookieHashKey = securecookie.GenerateRandomKey(64)
	}
	if len(c.CookieBlockKey) == 0 {
		c.CookieBlockKey = securecookie.GenerateRandomKey(32)
	}
	if len(c.VerifySecret) == 0 {
		c.VerifySecret = securecookie.GenerateRandomKey(32)
	}
	if c.CookieHashKey == nil || c.CookieBlockKey == nil || c.VerifySecret == nil {
		return fmt.Errorf("failed to generate random keys")
	}

	if len(c.CookieHashKey) < 32 {
		return fmt.Errorf("COOKIE_HASH_KEY must be at least 32 bytes, got %d", len(c.CookieHashKey))
	}
	switch len(c.CookieBlockKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("COOKIE_BLOCK_KEY must be 16, 24 or 32 bytes, got %d", len(c.CookieBlockKey))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func oauthClient(prefix string) OAuthClient {
	return OAuthClient{
		ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
	}
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return d, nil
}

// PlatformCheck reports the credentials platform needs that are not set.
// Roblox is public and always ready.
func (c *Config) PlatformCheck(platform string) error {
	switch platform {
	case "youtube":
		return Require("YOUTUBE_API_KEY", c.YouTubeAPIKey)
	case "twitch":
		return Require("TWITCH_CLIENT_ID", c.Twitch.ClientID, "TWITCH_CLIENT_SECRET", c.Twitch.ClientSecret)
	case "reddit":
		return Require("REDDIT_CLIENT_ID", c.Reddit.ClientID, "REDDIT_CLIENT_SECRET", c.Reddit.ClientSecret)
	case "discord":
		return Require("DISCORD_BOT_TOKEN", c.DiscordBotToken)
	case "twitter":
		return Require("TWITTER_CLIENT_ID", c.Twitter.ClientID, "TWITTER_CLIENT_SECRET", c.Twitter.ClientSecret)
	case "roblox":
		return nil
	}
	return fmt.Errorf("unknown platform %q", platform)
}
