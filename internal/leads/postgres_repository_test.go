package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresRepository_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"contact_id", "channel_owner_id", "channel_thread_id", "current_state", "answers", "version", "created_at", "updated_at"}).
		AddRow("contact-1", "owner", "thread", "S2", []byte(`{"name":"Alice"}`), int64(3), created, created)
	mock.ExpectQuery("SELECT contact_id").WithArgs("contact-1").WillReturnRows(rows)

	lead, err := NewPostgresRepository(mock).Get(context.Background(), "contact-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if lead.Answers["name"] != "Alice" || lead.Version != 3 || lead.CurrentState != "S2" {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_GetMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT contact_id").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)
	if _, err := NewPostgresRepository(mock).Get(context.Background(), "ghost"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestPostgresRepository_InsertIfAbsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	args := []any{"contact-1", "owner", "thread", "S0", pgxmock.AnyArg(), int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()}

	mock.ExpectExec("INSERT INTO asker_leads").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	stored, err := repo.Insert(context.Background(), New("contact-1", "owner", "thread", "S0"))
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}

	mock.ExpectExec("INSERT INTO asker_leads").WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	if _, err := repo.Insert(context.Background(), New("contact-1", "owner", "thread", "S0")); !errors.Is(err, ErrLeadExists) {
		t.Fatalf("expected ErrLeadExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_UpdateConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	lead := New("contact-1", "owner", "thread", "S1")
	lead.Version = 2
	lead.SetAnswer("name", "Alice")

	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE asker_leads").
		WithArgs("contact-1", int64(2), "S1", pgxmock.AnyArg(), "owner", "thread", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"version", "created_at", "updated_at"}).AddRow(int64(3), now, now))
	stored, err := repo.Update(context.Background(), lead)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if stored.Version != 3 {
		t.Fatalf("expected version 3, got %d", stored.Version)
	}

	mock.ExpectQuery("UPDATE asker_leads").
		WithArgs("contact-1", int64(2), "S1", pgxmock.AnyArg(), "owner", "thread", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	if _, err := repo.Update(context.Background(), lead); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_CheckSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("to_regclass").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	if err := repo.CheckSchema(context.Background()); err != nil {
		t.Fatalf("CheckSchema returned error: %v", err)
	}
	mock.ExpectQuery("to_regclass").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	if err := repo.CheckSchema(context.Background()); !errors.Is(err, ErrSchemaMissing) {
		t.Fatalf("expected ErrSchemaMissing, got %v", err)
	}
}
