package leads

import (
	"context"
	"sync"
	"time"
)

// Repository defines the interface for lead storage.
//
// Insert is insert-if-absent and fails with ErrLeadExists when the contact is
// already stored. Update is compare-and-set on lead.Version and fails with
// ErrConflict when the stored version differs. Both return the stored copy with
// its new version.
type Repository interface {
	Get(ctx context.Context, contactID string) (*Lead, error)
	Insert(ctx context.Context, lead *Lead) (*Lead, error)
	Update(ctx context.Context, lead *Lead) (*Lead, error)
}

// InMemoryRepository keeps leads in a map. Used by tests and LEAD_STORE=memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Get retrieves a lead by contact id.
func (r *InMemoryRepository) Get(_ context.Context, contactID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[contactID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

// Insert stores a new lead at version 1.
func (r *InMemoryRepository) Insert(_ context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.leads[lead.ContactID]; ok {
		return nil, ErrLeadExists
	}
	stored := lead.Clone()
	now := time.Now().UTC()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.leads[stored.ContactID] = stored
	return stored.Clone(), nil
}

// Update replaces the lead when the stored version matches lead.Version.
func (r *InMemoryRepository) Update(_ context.Context, lead *Lead) (*Lead, error) {
	if err := lead.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.leads[lead.ContactID]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if current.Version != lead.Version {
		return nil, ErrConflict
	}
	stored := lead.Clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	r.leads[stored.ContactID] = stored
	return stored.Clone(), nil
}
