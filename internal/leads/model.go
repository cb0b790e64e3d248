package leads

import (
	"strings"
	"time"
)

// Lead is the persisted conversation position of one contact.
type Lead struct {
	ContactID    string            `json:"contact_id" dynamodbav:"contact_id"`
	OwnerID      string            `json:"channel_owner_id" dynamodbav:"channel_owner_id"`
	ThreadID     string            `json:"channel_thread_id" dynamodbav:"channel_thread_id"`
	CurrentState string            `json:"current_state" dynamodbav:"current_state"`
	Answers      map[string]string `json:"answers" dynamodbav:"answers"`
	// Version is bumped by every committed write. Zero means the lead was never stored.
	Version   int64     `json:"version" dynamodbav:"version"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

// New builds an unsaved lead parked at initialState.
func New(contactID, ownerID, threadID, initialState string) *Lead {
	return &Lead{
		ContactID:    contactID,
		OwnerID:      ownerID,
		ThreadID:     threadID,
		CurrentState: initialState,
		Answers:      map[string]string{},
	}
}

// IsNew reports whether the lead has not been persisted yet.
func (l *Lead) IsNew() bool {
	return l.Version == 0
}

// Answer returns the captured value for field.
func (l *Lead) Answer(field string) (string, bool) {
	v, ok := l.Answers[field]
	return v, ok
}

// SetAnswer records value under field, replacing any previous value.
func (l *Lead) SetAnswer(field, value string) {
	if l.Answers == nil {
		l.Answers = map[string]string{}
	}
	l.Answers[field] = value
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	out := *l
	out.Answers = make(map[string]string, len(l.Answers))
	for k, v := range l.Answers {
		out.Answers[k] = v
	}
	return &out
}

// Validate checks the fields every store requires.
func (l *Lead) Validate() error {
	if l == nil || strings.TrimSpace(l.ContactID) == "" {
		return ErrMissingContact
	}
	return nil
}
