package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// ProcessedStore records inbound message ids that were already claimed.
// Claim returns false when another unit of work got there first. Release
// forgets a claim so a redelivered copy can be processed after a failure.
type ProcessedStore interface {
	Claim(ctx context.Context, messageID string) (bool, error)
	Release(ctx context.Context, messageID string) error
}

const processedKeySegment = "processed:"

// RedisProcessedStore claims ids with SET NX EX.
type RedisProcessedStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProcessedStore creates a Redis-backed store. Claims expire after ttl.
func NewRedisProcessedStore(client *redis.Client, prefix string, ttl time.Duration) *RedisProcessedStore {
	if client == nil {
		panic("events: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProcessedStore{client: client, prefix: prefix, ttl: ttl}
}

// Claim marks the id as processed, returning false if it already was.
func (s *RedisProcessedStore) Claim(ctx context.Context, messageID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+processedKeySegment+messageID, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("events: claim processed: %w", err)
	}
	return ok, nil
}

// Release drops the claim.
func (s *RedisProcessedStore) Release(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, s.prefix+processedKeySegment+messageID).Err(); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresProcessedStore claims ids in the asker_processed_events table.
type PostgresProcessedStore struct {
	pool rowQuerier
}

// NewPostgresProcessedStore creates a store on top of a pgx pool.
func NewPostgresProcessedStore(pool rowQuerier) *PostgresProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &PostgresProcessedStore{pool: pool}
}

// Claim inserts the id, returning false if it already exists.
func (s *PostgresProcessedStore) Claim(ctx context.Context, messageID string) (bool, error) {
	query := `
		INSERT INTO asker_processed_events (message_id)
		VALUES ($1)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, messageID)
	if err != nil {
		return false, fmt.Errorf("events: claim processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Release deletes the id.
func (s *PostgresProcessedStore) Release(ctx context.Context, messageID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM asker_processed_events WHERE message_id = $1`, messageID); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}

// MemoryProcessedStore is a TTL map for single-process deployments and tests.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryProcessedStore creates an in-process store. Expired ids are pruned on Claim.
func NewMemoryProcessedStore(ttl time.Duration) *MemoryProcessedStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryProcessedStore{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// Claim atomically checks and marks the id.
func (s *MemoryProcessedStore) Claim(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, id)
		}
	}
	if _, ok := s.seen[messageID]; ok {
		return false, nil
	}
	s.seen[messageID] = now
	return true, nil
}

// Release forgets the id.
func (s *MemoryProcessedStore) Release(_ context.Context, messageID string) error {
	s.mu.Lock()
	delete(s.seen, messageID)
	s.mu.Unlock()
	return nil
}
