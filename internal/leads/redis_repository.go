package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const leadKeySegment = "lead:"

// RedisRepository stores each lead as a JSON string under <prefix>lead:<contact_id>.
type RedisRepository struct {
	client *redis.Client
	prefix string
	tracer trace.Tracer
}

// NewRedisRepository creates a Redis-backed repository.
func NewRedisRepository(client *redis.Client, prefix string) *RedisRepository {
	if client == nil {
		panic("leads: redis client cannot be nil")
	}
	return &RedisRepository{
		client: client,
		prefix: prefix,
		tracer: otel.Tracer("avito-asker.internal.leads.redis"),
	}
}

// Get fetches a lead by contact id.
func (r *RedisRepository) Get(ctx context.Context, contactID string) (*Lead, error) {
	ctx, span := r.tracer.Start(ctx, "leads.redis.get", trace.WithAttributes(attribute.String("contact_id", contactID)))
	defer span.End()

	raw, err := r.client.Get(ctx, r.key(contactID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrLeadNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("leads: redis get: %w", err)
	}
	return decodeLead(raw)
}

// Insert stores the lead at version 1 with SET NX.
func (r *RedisRepository) Insert(ctx context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}
	ctx, span := r.tracer.Start(ctx, "leads.redis.insert", trace.WithAttributes(attribute.String("contact_id", lead.ContactID)))
	defer span.End()

	stored := lead.Clone()
	now := time.Now().UTC()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("leads: marshal lead: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(stored.ContactID), data, 0).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("leads: redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrLeadExists
	}
	return stored, nil
}

// Update writes the lead inside WATCH/MULTI so a concurrent write aborts it.
func (r *RedisRepository) Update(ctx context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}
	ctx, span := r.tracer.Start(ctx, "leads.redis.update", trace.WithAttributes(
		attribute.String("contact_id", lead.ContactID),
		attribute.Int64("expected_version", lead.Version),
	))
	defer span.End()

	key := r.key(lead.ContactID)
	var stored *Lead
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrLeadNotFound
			}
			return fmt.Errorf("leads: redis get: %w", err)
		}
		current, err := decodeLead(raw)
		if err != nil {
			return err
		}
		if current.Version != lead.Version {
			return ErrConflict
		}

		next := lead.Clone()
		next.Version = current.Version + 1
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("leads: marshal lead: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		stored = next
		return nil
	}, key)

	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, redis.TxFailedErr):
		return nil, ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLeadNotFound):
		return nil, err
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("leads: redis update: %w", err)
	}
}

func (r *RedisRepository) key(contactID string) string {
	return r.prefix + leadKeySegment + contactID
}

func decodeLead(raw []byte) (*Lead, error) {
	var lead Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return nil, fmt.Errorf("leads: decode lead: %w", err)
	}
	if lead.Answers == nil {
		lead.Answers = map[string]string{}
	}
	return &lead, nil
}
