// Package config loads the intervu server configuration.
//
// Values come from defaults, then an optional YAML file, then environment
// variables. Load validates the result and fails on the first problem.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/intervu-client/pkg/cache"
	"github.com/Sternrassler/intervu-client/pkg/client"
	"github.com/Sternrassler/intervu-client/pkg/logging"
	"github.com/Sternrassler/intervu-client/pkg/spa"
)

// Environment variables read by Load.
const (
	EnvEnvironment      = "INTERVU_ENV"
	EnvPort             = "PORT"
	EnvBasePath         = "BASE_PATH"
	EnvDistDir          = "DIST_DIR"
	EnvAPIURL           = "API_URL"
	EnvAPIOrigin        = "API_ORIGIN"
	EnvRedisURL         = "REDIS_URL"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogPretty        = "LOG_PRETTY"
	EnvCacheStaleAfter  = "CACHE_STALE_AFTER"
	EnvCacheExpireAfter = "CACHE_EXPIRE_AFTER"
)

const (
	// DefaultPort is the port the SPA server listens on.
	DefaultPort = 5173

	// DefaultDistDir is the build directory served by the SPA server.
	DefaultDistDir = "dist"

	// ProductionBasePath is the base path used when no other is configured in production.
	ProductionBasePath = "/intervu/"

	// DefaultUserAgent identifies the client to the upstream API.
	DefaultUserAgent = "intervu-client/0.1.0"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete server configuration.
type Config struct {
	Environment string       `yaml:"environment"`
	Server      ServerConfig `yaml:"server"`
	API         APIConfig    `yaml:"api"`
	Redis       RedisConfig  `yaml:"redis"`
	Log         LogConfig    `yaml:"log"`
	Cache       CacheConfig  `yaml:"cache"`
}

// ServerConfig configures the SPA server.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	DistDir  string `yaml:"dist_dir"`
}

// APIConfig configures the GraphQL client.
type APIConfig struct {
	// URL is absolute, or relative to Origin.
	URL        string        `yaml:"url"`
	Origin     string        `yaml:"origin"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RedisConfig configures the shared rate-limit store. An empty URL keeps
// rate-limit state in memory.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// CacheConfig configures the query cache freshness windows.
type CacheConfig struct {
	StaleAfter        time.Duration `yaml:"stale_after"`
	ExpireAfter       time.Duration `yaml:"expire_after"`
	BackgroundRefresh bool          `yaml:"background_refresh"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	policy := cache.DefaultPolicy()
	return Config{
		Server: ServerConfig{
			Port:    DefaultPort,
			DistDir: DefaultDistDir,
		},
		API: APIConfig{
			UserAgent:  DefaultUserAgent,
			Timeout:    30 * time.Second,
			MaxRetries: 2,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
		Cache: CacheConfig{
			StaleAfter:        policy.StaleAfter,
			ExpireAfter:       policy.ExpireAfter,
			BackgroundRefresh: policy.BackgroundRefresh,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string, lookupEnv func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	if err := cfg.applyEnv(lookupEnv); err != nil {
		return Config{}, err
	}

	cfg.finalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookupEnv func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvEnvironment, &c.Environment)
	str(EnvBasePath, &c.Server.BasePath)
	str(EnvDistDir, &c.Server.DistDir)
	str(EnvAPIURL, &c.API.URL)
	str(EnvAPIOrigin, &c.API.Origin)
	str(EnvRedisURL, &c.Redis.URL)
	str(EnvLogLevel, &c.Log.Level)

	if v, ok := lookupEnv(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvPort, v)
		}
		c.Server.Port = port
	}

	if v, ok := lookupEnv(EnvLogPretty); ok && v != "" {
		pretty, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, EnvLogPretty, v)
		}
		c.Log.Pretty = pretty
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvCacheStaleAfter, &c.Cache.StaleAfter},
		{EnvCacheExpireAfter, &c.Cache.ExpireAfter},
	}
	for _, d := range durations {
		v, ok := lookupEnv(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, d.key, v, err)
		}
		*d.dst = parsed
	}

	return nil
}

// finalize fills values that depend on other settings.
func (c *Config) finalize() {
	if c.Server.BasePath == "" && c.IsProduction() {
		c.Server.BasePath = ProductionBasePath
	}
	c.Server.BasePath = spa.NormalizeBasePath(c.Server.BasePath)
}

// IsProduction reports whether the production environment is selected.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535 (got %d)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.DistDir == "" {
		return fmt.Errorf("%w: dist_dir is required", ErrInvalidConfig)
	}
	if c.API.UserAgent == "" {
		return fmt.Errorf("%w: api.user_agent is required", ErrInvalidConfig)
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be > 0 (got %s)", ErrInvalidConfig, c.API.Timeout)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("%w: api.max_retries must be >= 0 (got %d)", ErrInvalidConfig, c.API.MaxRetries)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.CachePolicy().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Redis.URL != "" {
		if _, err := redis.ParseURL(c.Redis.URL); err != nil {
			return fmt.Errorf("%w: redis url: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Endpoint returns the GraphQL endpoint derived from the API settings.
func (c Config) Endpoint() string {
	return client.ResolveEndpoint(c.API.URL, c.API.Origin)
}

// CachePolicy returns the query cache policy.
func (c Config) CachePolicy() cache.Policy {
	return cache.Policy{
		StaleAfter:        c.Cache.StaleAfter,
		ExpireAfter:       c.Cache.ExpireAfter,
		BackgroundRefresh: c.Cache.BackgroundRefresh,
	}
}

// ClientConfig returns the GraphQL client configuration.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Endpoint(), c.API.UserAgent)
	cfg.Timeout = c.API.Timeout
	cfg.MaxRetries = c.API.MaxRetries
	return cfg
}

// LoggingConfig returns the logger configuration writing to out.
func (c Config) LoggingConfig(out io.Writer) logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.Config{
		Level:  level,
		Pretty: c.Log.Pretty,
		Output: out,
	}
}

// RedisOptions parses the Redis URL. It returns nil when Redis is not configured.
func (c Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL == "" {
		return nil, nil
	}
	return redis.ParseURL(c.Redis.URL)
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
