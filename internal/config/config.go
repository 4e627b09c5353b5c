package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Spotify   SpotifyConfig
	Lastfm    LastfmConfig
	Playlist  PlaylistConfig
	Jobs      JobsConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	BlendPerHour int
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BaseURL      string
	PageLimit    int
}

type LastfmConfig struct {
	APIKey      string
	BaseURL     string
	PageLimit   int
	PageDelayMS int
}

type PlaylistConfig struct {
	NamePrefix  string
	BatchSize   int
	MaxRequests int
}

type JobsConfig struct {
	RetentionMinutes int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("SESSION_SECRET")
	readSecret("SPOTIFY_CLIENT_SECRET")
	readSecret("LASTFM_API_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("session.secret", "SESSION_SECRET")
	_ = viper.BindEnv("session.expiration", "SESSION_EXPIRATION")
	_ = viper.BindEnv("ratelimit.blend_per_hour", "RATELIMIT_BLEND_PER_HOUR")
	_ = viper.BindEnv("spotify.client_id", "SPOTIFY_CLIENT_ID")
	_ = viper.BindEnv("spotify.client_secret", "SPOTIFY_CLIENT_SECRET")
	_ = viper.BindEnv("spotify.redirect_url", "SPOTIFY_REDIRECT_URL")
	_ = viper.BindEnv("spotify.base_url", "SPOTIFY_BASE_URL")
	_ = viper.BindEnv("spotify.page_limit", "SPOTIFY_PAGE_LIMIT")
	_ = viper.BindEnv("lastfm.api_key", "LASTFM_API_KEY")
	_ = viper.BindEnv("lastfm.base_url", "LASTFM_BASE_URL")
	_ = viper.BindEnv("lastfm.page_limit", "LASTFM_PAGE_LIMIT")
	_ = viper.BindEnv("lastfm.page_delay_ms", "LASTFM_PAGE_DELAY_MS")
	_ = viper.BindEnv("playlist.name_prefix", "PLAYLIST_NAME_PREFIX")
	_ = viper.BindEnv("playlist.batch_size", "PLAYLIST_BATCH_SIZE")
	_ = viper.BindEnv("playlist.max_requests", "PLAYLIST_MAX_REQUESTS")
	_ = viper.BindEnv("jobs.retention_minutes", "JOBS_RETENTION_MINUTES")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("session.secret", "change-me-in-production")
	viper.SetDefault("session.expiration", 24)
	viper.SetDefault("ratelimit.blend_per_hour", 5)

	// Spotify defaults
	viper.SetDefault("spotify.redirect_url", "http://localhost:8000/auth/callback")
	viper.SetDefault("spotify.base_url", "https://api.spotify.com/v1")
	viper.SetDefault("spotify.page_limit", 50)

	// Last.fm defaults
	viper.SetDefault("lastfm.base_url", "https://ws.audioscrobbler.com/2.0")
	viper.SetDefault("lastfm.page_limit", 200)
	viper.SetDefault("lastfm.page_delay_ms", 250)

	// Playlist defaults. 100 URIs per add call is the Spotify maximum.
	viper.SetDefault("playlist.name_prefix", "Underplayed")
	viper.SetDefault("playlist.batch_size", 100)
	viper.SetDefault("playlist.max_requests", 30)

	// Terminal snapshots are kept for an hour
	viper.SetDefault("jobs.retention_minutes", 60)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Session: SessionConfig{
			Secret:     viper.GetString("session.secret"),
			Expiration: viper.GetInt("session.expiration"),
		},
		RateLimit: RateLimitConfig{
			BlendPerHour: viper.GetInt("ratelimit.blend_per_hour"),
		},
		Spotify: SpotifyConfig{
			ClientID:     viper.GetString("spotify.client_id"),
			ClientSecret: viper.GetString("spotify.client_secret"),
			RedirectURL:  viper.GetString("spotify.redirect_url"),
			BaseURL:      viper.GetString("spotify.base_url"),
			PageLimit:    viper.GetInt("spotify.page_limit"),
		},
		Lastfm: LastfmConfig{
			APIKey:      viper.GetString("lastfm.api_key"),
			BaseURL:     viper.GetString("lastfm.base_url"),
			PageLimit:   viper.GetInt("lastfm.page_limit"),
			PageDelayMS: viper.GetInt("lastfm.page_delay_ms"),
		},
		Playlist: PlaylistConfig{
			NamePrefix:  viper.GetString("playlist.name_prefix"),
			BatchSize:   viper.GetInt("playlist.batch_size"),
			MaxRequests: viper.GetInt("playlist.max_requests"),
		},
		Jobs: JobsConfig{
			RetentionMinutes: viper.GetInt("jobs.retention_minutes"),
		},
	}

	return cfg, nil
}
