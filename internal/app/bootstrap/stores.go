package bootstrap

import (
	"context"
	"fmt"

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

// BuildFormStore selects the form source from FORM_SOURCE.
func BuildFormStore(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool) (forms.Store, error) {
	switch cfg.FormSource {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis form source requires redis")
		}
		return forms.NewRedisStore(redisClient, cfg.KeyPrefix), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres form source requires DATABASE_URL")
		}
		return forms.NewPostgresStore(pool), nil
	case "file":
		return forms.NewFileStore(cfg.FormFile), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown FORM_SOURCE %q", cfg.FormSource)
	}
}

// LoadFormDefinition reads and validates the configured form.
func LoadFormDefinition(ctx context.Context, cfg *appconfig.Config, store forms.Store, logger *logging.Logger) (*forms.Definition, error) {
	if logger == nil {
		logger = logging.Default()
	}
	def, err := store.Load(ctx, cfg.FormName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load form %q: %w", cfg.FormName, err)
	}
	logger.Info("form definition loaded", "form", def.Name(), "initial_state", def.Initial(), "states", def.Len())
	return def, nil
}

// BuildLeadRepository selects lead persistence from LEAD_STORE.
func BuildLeadRepository(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool, dynamoClient *dynamodb.Client, logger *logging.Logger) (leads.Repository, error) {
	switch cfg.LeadStore {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis lead store requires redis")
		}
		return leads.NewRedisRepository(redisClient, cfg.KeyPrefix), nil
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: postgres lead store requires DATABASE_URL")
		}
		repo := leads.NewPostgresRepository(pool)
		if err := repo.CheckSchema(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap: %w (run cmd/migrate)", err)
		}
		return repo, nil
	case "dynamodb":
		if dynamoClient == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb lead store requires a client")
		}
		return leads.NewDynamoRepository(dynamoClient, cfg.LeadsTable, logger), nil
	case "memory":
		if logger != nil {
			logger.Warn("using in-memory lead store; leads are lost on restart")
		}
		return leads.NewInMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LEAD_STORE %q", cfg.LeadStore)
	}
}

// BuildMessageBus selects the transport from BUS_BACKEND.
func BuildMessageBus(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (messaging.Bus, error) {
	switch cfg.BusBackend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: redis bus requires redis")
		}
		return messaging.NewRedisBus(redisClient, logger), nil
	case "memory":
		return messaging.NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown BUS_BACKEND %q", cfg.BusBackend)
	}
}

// BuildProcessedStore prefers Redis, then Postgres, then process memory.
func BuildProcessedStore(cfg *appconfig.Config, redisClient *redis.Client, pool *pgxpool.Pool) events.ProcessedStore {
	switch {
	case redisClient != nil:
		return events.NewRedisProcessedStore(redisClient, cfg.KeyPrefix, cfg.DedupeTTL)
	case pool != nil:
		return events.NewPostgresProcessedStore(pool)
	default:
		return events.NewMemoryProcessedStore(cfg.DedupeTTL)
	}
}
