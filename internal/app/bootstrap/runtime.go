package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/avito-asker/internal/config"
	"github.com/wolfman30/avito-asker/internal/events"
	"github.com/wolfman30/avito-asker/internal/forms"
	"github.com/wolfman30/avito-asker/internal/leads"
	"github.com/wolfman30/avito-asker/internal/messaging"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL and verifies the connection.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// AWSConfigLoader resolves the AWS SDK configuration. It is only called when
// a component needs AWS.
type AWSConfigLoader func(ctx context.Context, cfg *appconfig.Config) (aws.Config, error)

// Runtime bundles the long-lived clients and stores the asker service runs on.
type Runtime struct {
	Redis     *redis.Client
	Postgres  *pgxpool.Pool
	Form      *forms.Definition
	Leads     leads.Repository
	Processed events.ProcessedStore
	Bus       messaging.Bus

	closers []func()
}

// NewRuntime connects every backend selected by cfg and loads the form. Any
// failure is fatal to startup; partially built clients are closed.
func NewRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, loadAWS AWSConfigLoader) (rt *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt = &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	if needsRedis(cfg) {
		rt.Redis = BuildRedisClient(ctx, cfg, logger, true)
		if rt.Redis == nil {
			return rt, fmt.Errorf("bootstrap: redis unreachable at %s", cfg.RedisAddr)
		}
		client := rt.Redis
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}
	if needsPostgres(cfg) {
		rt.Postgres, err = BuildPostgresPool(ctx, cfg)
		if err != nil {
			return rt, err
		}
		rt.closers = append(rt.closers, rt.Postgres.Close)
	}

	formStore, err := BuildFormStore(cfg, rt.Redis, rt.Postgres)
	if err != nil {
		return rt, err
	}
	rt.Form, err = LoadFormDefinition(ctx, cfg, formStore, logger)
	if err != nil {
		return rt, err
	}

	var dynamoClient *dynamodb.Client
	if cfg.LeadStore == "dynamodb" {
		if loadAWS == nil {
			return rt, fmt.Errorf("bootstrap: dynamodb lead store requires AWS configuration")
		}
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return rt, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}
	rt.Leads, err = BuildLeadRepository(ctx, cfg, rt.Redis, rt.Postgres, dynamoClient, logger)
	if err != nil {
		return rt, err
	}

	rt.Processed = BuildProcessedStore(cfg, rt.Redis, rt.Postgres)

	rt.Bus, err = BuildMessageBus(cfg, rt.Redis, logger)
	if err != nil {
		return rt, err
	}
	if mem, ok := rt.Bus.(*messaging.MemoryBus); ok {
		rt.closers = append(rt.closers, mem.Close)
	}

	logger.Info("runtime ready",
		"form", rt.Form.Name(),
		"states", rt.Form.Len(),
		"lead_store", cfg.LeadStore,
		"form_source", cfg.FormSource,
		"bus", cfg.BusBackend,
	)
	return rt, nil
}

// Ready reports whether the form is loaded and the backing stores respond.
func (rt *Runtime) Ready(ctx context.Context) error {
	if rt == nil || rt.Form == nil {
		return errors.New("bootstrap: form not loaded")
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("bootstrap: redis: %w", err)
		}
	}
	if rt.Postgres != nil {
		if err := rt.Postgres.Ping(ctx); err != nil {
			return fmt.Errorf("bootstrap: postgres: %w", err)
		}
	}
	return nil
}

// Close releases clients in reverse order of creation.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func needsRedis(cfg *appconfig.Config) bool {
	return cfg.FormSource == "redis" ||
		cfg.LeadStore == "redis" ||
		cfg.BusBackend == "redis" ||
		cfg.DistributedLocks
}

func needsPostgres(cfg *appconfig.Config) bool {
	return cfg.FormSource == "postgres" || cfg.LeadStore == "postgres"
}
