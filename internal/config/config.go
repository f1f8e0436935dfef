// Package config reads process configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mercury-player/merplayer/internal/logging"
)

// ErrInvalid is wrapped by every malformed-value error returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// Config stores the application configuration.
type Config struct {
	Addr      string // HTTP listen address
	StaticDir string // SPA build served at /, empty disables

	// Catalogue API
	APIBaseURL      string
	GraphQLEndpoint string
	APITimeout      time.Duration

	// Playlist file, served by this process or bundled with the desktop shell
	PlaylistPath  string
	PublicBaseURL string

	// Enrichment
	Strategy          string // remote, local or none
	FetchTimeout      time.Duration
	FallbackTimeout   time.Duration
	EnrichConcurrency int // 0 = unbounded
	CoverMaxSize      int // px, 0 disables downscaling

	// Metadata cache
	CacheBackend  string // memory, sqlite or redis
	CachePath     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ClearCache    bool

	// MPD playback surface, used when MPDHost is set
	MPDHost     string
	MPDPort     int
	MPDPassword string

	// Desktop bridge
	Packaged      bool
	ResourcesPath string

	DefaultVolume   float64
	SocketMaxRemote int

	Log logging.Config
}

// Load reads .env (if present) and the environment. Existing environment
// variables take precedence over .env entries.
func Load() (*Config, error) {
	return LoadFrom()
}

// LoadFrom is Load with explicit .env files. With no files it looks for
// .env in the working directory.
func LoadFrom(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 {
			return nil, fmt.Errorf("load env files: %w", err)
		}
		log.Debug().Msg("No .env file found, relying on environment and defaults")
	}

	p := &parser{}
	cfg := &Config{
		Addr:      getEnv("MERPLAYER_ADDR", ":3001"),
		StaticDir: getEnv("STATIC_DIR", ""),

		APIBaseURL:      strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
		GraphQLEndpoint: getEnv("GRAPHQL_ENDPOINT", "/api/graphql"),
		APITimeout:      p.duration("API_TIMEOUT", 10*time.Second),

		PlaylistPath:  getEnv("PLAYLIST_PATH", "/data/playlist.json"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3001"), "/"),

		Strategy:          strings.ToLower(getEnv("ENRICH_STRATEGY", "remote")),
		FetchTimeout:      p.duration("FETCH_TIMEOUT", 30*time.Second),
		FallbackTimeout:   p.duration("FALLBACK_TIMEOUT", 5*time.Second),
		EnrichConcurrency: p.integer("ENRICH_CONCURRENCY", 0),
		CoverMaxSize:      p.integer("COVER_MAX_SIZE", 500),

		CacheBackend:  strings.ToLower(getEnv("CACHE_BACKEND", "sqlite")),
		CachePath:     getEnv("CACHE_PATH", "data/metadata.db"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       p.integer("REDIS_DB", 0),
		ClearCache:    p.boolean("CLEAR_CACHE", false),

		MPDHost:     getEnv("MPD_HOST", ""),
		MPDPort:     p.integer("MPD_PORT", 6600),
		MPDPassword: os.Getenv("MPD_PASSWORD"),

		Packaged:      p.boolean("ELECTRON_PACKAGED", false),
		ResourcesPath: getEnv("RESOURCES_PATH", ""),

		DefaultVolume:   p.float("DEFAULT_VOLUME", 0.7),
		SocketMaxRemote: p.integer("SOCKET_MAX_REMOTE", 0),

		Log: logging.Config{
			Level:      logLevel(p),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  p.integer("LOG_MAX_SIZE_MB", 50),
			MaxBackups: p.integer("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: p.integer("LOG_MAX_AGE_DAYS", 28),
			Compress:   p.boolean("LOG_COMPRESS", true),
		},
	}

	p.oneOf("ENRICH_STRATEGY", cfg.Strategy, "remote", "local", "none")
	p.oneOf("CACHE_BACKEND", cfg.CacheBackend, "memory", "sqlite", "redis")
	if cfg.DefaultVolume < 0 || cfg.DefaultVolume > 1 {
		p.fail("DEFAULT_VOLUME", strconv.FormatFloat(cfg.DefaultVolume, 'g', -1, 64), "must be within [0, 1]")
	}
	if cfg.EnrichConcurrency < 0 {
		p.fail("ENRICH_CONCURRENCY", strconv.Itoa(cfg.EnrichConcurrency), "must not be negative")
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logLevel(p *parser) string {
	if level, ok := os.LookupEnv("LOG_LEVEL"); ok && level != "" {
		return strings.ToLower(level)
	}
	if p.boolean("DEBUG", false) {
		return "debug"
	}
	return "info"
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// parser collects every malformed value so a bad deployment reports all
// problems at once.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value, reason string) {
	p.errs = append(p.errs, fmt.Errorf("%w: %s=%q %s", ErrInvalid, key, value, reason))
}

func (p *parser) integer(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "is not an integer")
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		p.fail(key, value, "is not a number")
		return fallback
	}
	return f
}

func (p *parser) boolean(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		p.fail(key, value, "is not a boolean")
		return fallback
	}
	return b
}

// duration accepts Go durations ("30s") or bare seconds ("30").
func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		p.fail(key, value, "is not a duration")
		return fallback
	}
	return d
}

func (p *parser) oneOf(key, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	p.fail(key, value, "must be one of "+strings.Join(allowed, ", "))
}
