package leads

import "errors"

var (
	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")

	// ErrLeadExists is returned when an insert races with another insert for the same contact
	ErrLeadExists = errors.New("lead already exists")

	// ErrConflict is returned when a conditional update sees a different version than expected
	ErrConflict = errors.New("lead version conflict")

	// ErrMissingContact is returned when a lead has no contact id
	ErrMissingContact = errors.New("contact_id is required")

	// ErrSchemaMissing is returned at startup when the leads table does not exist
	ErrSchemaMissing = errors.New("leads table is missing")
)
