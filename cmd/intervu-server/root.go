package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/intervu-client/pkg/cache"
	"github.com/Sternrassler/intervu-client/pkg/client"
	"github.com/Sternrassler/intervu-client/pkg/config"
	"github.com/Sternrassler/intervu-client/pkg/intervu"
	"github.com/Sternrassler/intervu-client/pkg/logging"
	"github.com/Sternrassler/intervu-client/pkg/ratelimit"
	"github.com/Sternrassler/intervu-client/pkg/spa"
)

// app carries the state shared by every command.
type app struct {
	lookupEnv  func(string) (string, bool)
	configPath string
	cfg        config.Config
	logger     zerolog.Logger
}

func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	a := &app{lookupEnv: lookupEnv}

	cmd := &cobra.Command{
		Use:           "intervu-server",
		Short:         "Serve the intervu app and query its API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("api-url", "", "GraphQL API base URL (absolute, or relative to --api-origin)")
	cmd.PersistentFlags().String("api-origin", "", "origin relative API URLs resolve against")

	cmd.AddCommand(newServeCmd(a), newQuestionsCmd(a), newCategoriesCmd(a), newRenderCmd(a))
	return cmd
}

// load reads the configuration and applies flags that were set explicitly.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.lookupEnv)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if changed("api-url") {
		cfg.API.URL, _ = flags.GetString("api-url")
	}
	if changed("api-origin") {
		cfg.API.Origin, _ = flags.GetString("api-origin")
	}
	if changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if changed("base-path") {
		base, _ := flags.GetString("base-path")
		cfg.Server.BasePath = spa.NormalizeBasePath(base)
	}
	if changed("dist") {
		cfg.Server.DistDir, _ = flags.GetString("dist")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	logging.Setup(cfg.LoggingConfig(cmd.ErrOrStderr()))
	a.logger = logging.NewLogger(logging.ComponentCLI)
	return nil
}

// backend is the API stack built from the configuration.
type backend struct {
	client  *client.Client
	cache   *cache.Cache
	service *intervu.Service
	tracker *ratelimit.Tracker
	redis   *redis.Client
}

// Close releases the Redis connection, if any.
func (b *backend) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}

// Ping checks the Redis connection. It succeeds when Redis is not configured.
func (b *backend) Ping(ctx context.Context) error {
	if b.redis == nil {
		return nil
	}
	return b.redis.Ping(ctx).Err()
}

func (a *app) newBackend() (*backend, error) {
	b := &backend{}

	opts, err := a.cfg.RedisOptions()
	if err != nil {
		return nil, fmt.Errorf("redis options: %w", err)
	}

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if opts != nil {
		b.redis = redis.NewClient(opts)
		store = ratelimit.NewRedisStore(b.redis)
	}
	b.tracker = ratelimit.NewTracker(store, logging.NewLogger(logging.ComponentRateLimit))

	clientLogger := logging.NewLogger(logging.ComponentClient)
	clientCfg := a.cfg.ClientConfig()
	clientCfg.RateLimiter = b.tracker
	clientCfg.Logger = &clientLogger

	b.client, err = client.New(clientCfg)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create client: %w", err)
	}

	cacheLogger := logging.NewLogger(logging.ComponentCache)
	b.cache, err = cache.New(cache.Config{
		Fetcher: b.client,
		Policy:  a.cfg.CachePolicy(),
		Logger:  &cacheLogger,
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	b.service = intervu.NewService(b.cache, b.client, logging.NewLogger(logging.ComponentIntervu))
	return b, nil
}
