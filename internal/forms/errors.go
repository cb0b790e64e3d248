package forms

import "errors"

var (
	// ErrFormNotFound is returned when the store has no definition under the requested name
	ErrFormNotFound = errors.New("form not found")

	// ErrInvalidDefinition wraps every validation failure of a form document
	ErrInvalidDefinition = errors.New("invalid form definition")
)
