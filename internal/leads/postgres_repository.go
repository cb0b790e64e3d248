package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the asker_leads table.
type PostgresRepository struct {
	pool rowQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool rowQuerier) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// CheckSchema fails with ErrSchemaMissing when migrations have not been applied.
func (r *PostgresRepository) CheckSchema(ctx context.Context) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT to_regclass('asker_leads') IS NOT NULL`).Scan(&exists); err != nil {
		return fmt.Errorf("leads: check schema: %w", err)
	}
	if !exists {
		return ErrSchemaMissing
	}
	return nil
}

// Get fetches a lead by contact id.
func (r *PostgresRepository) Get(ctx context.Context, contactID string) (*Lead, error) {
	query := `
		SELECT contact_id, channel_owner_id, channel_thread_id, current_state, answers, version, created_at, updated_at
		FROM asker_leads
		WHERE contact_id = $1
	`
	var (
		lead    Lead
		answers []byte
	)
	if err := r.pool.QueryRow(ctx, query, contactID).Scan(
		&lead.ContactID,
		&lead.OwnerID,
		&lead.ThreadID,
		&lead.CurrentState,
		&answers,
		&lead.Version,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	lead.Answers = map[string]string{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &lead.Answers); err != nil {
			return nil, fmt.Errorf("leads: decode answers: %w", err)
		}
	}
	return &lead, nil
}

// Insert adds the lead at version 1 unless the contact already has a row.
func (r *PostgresRepository) Insert(ctx context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}
	stored := lead.Clone()
	now := time.Now().UTC()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	answers, err := json.Marshal(stored.Answers)
	if err != nil {
		return nil, fmt.Errorf("leads: marshal answers: %w", err)
	}
	query := `
		INSERT INTO asker_leads (contact_id, channel_owner_id, channel_thread_id, current_state, answers, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (contact_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		stored.ContactID,
		stored.OwnerID,
		stored.ThreadID,
		stored.CurrentState,
		answers,
		stored.Version,
		stored.CreatedAt,
		stored.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrLeadExists
	}
	return stored, nil
}

// Update writes the lead only if the row still carries lead.Version. A missing
// row is reported as ErrConflict too since the statement cannot tell them apart.
func (r *PostgresRepository) Update(ctx context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}
	answers, err := json.Marshal(lead.Answers)
	if err != nil {
		return nil, fmt.Errorf("leads: marshal answers: %w", err)
	}

	query := `
		UPDATE asker_leads
		SET current_state = $3, answers = $4, channel_owner_id = $5, channel_thread_id = $6,
			version = version + 1, updated_at = $7
		WHERE contact_id = $1 AND version = $2
		RETURNING version, created_at, updated_at
	`
	stored := lead.Clone()
	if err := r.pool.QueryRow(ctx, query,
		lead.ContactID,
		lead.Version,
		lead.CurrentState,
		answers,
		lead.OwnerID,
		lead.ThreadID,
		time.Now().UTC(),
	).Scan(&stored.Version, &stored.CreatedAt, &stored.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	return stored, nil
}
