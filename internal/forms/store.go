package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Store loads form definitions by name.
type Store interface {
	Load(ctx context.Context, name string) (*Definition, error)
}

// Saver persists a validated definition under its name.
type Saver interface {
	Save(ctx context.Context, def *Definition) error
}

const formKeySegment = "form:"

// RedisStore keeps each form as a JSON string under <prefix>form:<name>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed form store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("forms: redis client cannot be nil")
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Load fetches and validates the named form.
func (s *RedisStore) Load(ctx context.Context, name string) (*Definition, error) {
	raw, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("forms: %q: %w", name, ErrFormNotFound)
		}
		return nil, fmt.Errorf("forms: get %q: %w", name, err)
	}
	return decodeNamed(raw, name)
}

// Save writes def as JSON, replacing any previous version.
func (s *RedisStore) Save(ctx context.Context, def *Definition) error {
	data, err := json.Marshal(def.Document())
	if err != nil {
		return fmt.Errorf("forms: marshal %q: %w", def.Name(), err)
	}
	if err := s.client.Set(ctx, s.key(def.Name()), data, 0).Err(); err != nil {
		return fmt.Errorf("forms: set %q: %w", def.Name(), err)
	}
	return nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + formKeySegment + name
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps forms in the asker_forms table as JSONB.
type PostgresStore struct {
	pool rowQuerier
}

// NewPostgresStore creates a Postgres-backed form store. pool is usually a *pgxpool.Pool.
func NewPostgresStore(pool rowQuerier) *PostgresStore {
	if pool == nil {
		panic("forms: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// Load fetches and validates the named form.
func (s *PostgresStore) Load(ctx context.Context, name string) (*Definition, error) {
	query := `SELECT definition FROM asker_forms WHERE name = $1`
	var raw []byte
	if err := s.pool.QueryRow(ctx, query, name).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("forms: %q: %w", name, ErrFormNotFound)
		}
		return nil, fmt.Errorf("forms: select %q: %w", name, err)
	}
	return decodeNamed(raw, name)
}

// Save upserts def.
func (s *PostgresStore) Save(ctx context.Context, def *Definition) error {
	data, err := json.Marshal(def.Document())
	if err != nil {
		return fmt.Errorf("forms: marshal %q: %w", def.Name(), err)
	}
	query := `
		INSERT INTO asker_forms (name, definition, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET definition = EXCLUDED.definition, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, query, def.Name(), data); err != nil {
		return fmt.Errorf("forms: upsert %q: %w", def.Name(), err)
	}
	return nil
}

// FileStore reads a single form from a YAML or JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the form at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the file. The name is used only when the document omits one.
func (s *FileStore) Load(_ context.Context, name string) (*Definition, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, fmt.Errorf("forms: file path is required: %w", ErrFormNotFound)
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("forms: %s: %w", s.path, ErrFormNotFound)
		}
		return nil, fmt.Errorf("forms: read %s: %w", s.path, err)
	}

	var doc Document
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidDefinition, s.path, err)
		}
	} else {
		def, err := DecodeYAML(raw)
		if err != nil {
			return nil, err
		}
		doc = def.Document()
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return Parse(doc)
}

func decodeNamed(raw []byte, name string) (*Definition, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", ErrInvalidDefinition, name, err)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return Parse(doc)
}
