package events

import "errors"

// ErrMalformedEvent is returned when an inbound payload cannot be decoded or lacks a sender.
var ErrMalformedEvent = errors.New("malformed inbound event")
