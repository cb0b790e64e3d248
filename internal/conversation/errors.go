package conversation

import "errors"

var (
	// ErrMissingState is returned when the lead or a next_state points at a state the form does not define.
	ErrMissingState = errors.New("conversation: state not defined")

	// ErrChainTooLong is returned when automatic transitions exceed the configured chain length.
	ErrChainTooLong = errors.New("conversation: too many chained states")

	// ErrUnknownKind is returned for a state whose kind is outside the closed set.
	ErrUnknownKind = errors.New("conversation: unknown state kind")
)
