package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InboundEvent is the payload published by the marketplace bridge for every contact message.
type InboundEvent struct {
	MessageID string `json:"message_id,omitempty"`
	SenderID  string `json:"sender_id"`
	OwnerID   string `json:"owner_id"`
	ThreadID  string `json:"thread_id"`
	Text      string `json:"text"`
}

// DecodeInbound parses and validates a raw inbound payload.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var evt InboundEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	evt.SenderID = strings.TrimSpace(evt.SenderID)
	if evt.SenderID == "" {
		return InboundEvent{}, fmt.Errorf("%w: sender_id is required", ErrMalformedEvent)
	}
	return evt, nil
}

// MessageKind tells consumers why a message was produced.
type MessageKind string

const (
	// KindPrompt is a form prompt addressed to the contact.
	KindPrompt MessageKind = "prompt"
	// KindSummary is the collected answers addressed to the operator.
	KindSummary MessageKind = "summary"
	// KindPassthrough is a contact message relayed verbatim to the operator after the form completed.
	KindPassthrough MessageKind = "passthrough"
)

// InternalMessage is the envelope published on the contact and operator channels.
type InternalMessage struct {
	ID        string      `json:"id"`
	Kind      MessageKind `json:"kind"`
	ContactID string      `json:"contact_id"`
	OwnerID   string      `json:"owner_id"`
	ThreadID  string      `json:"thread_id"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewInternalMessage stamps a fresh id and creation time.
func NewInternalMessage(kind MessageKind, contactID, ownerID, threadID, text string) InternalMessage {
	return InternalMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		ContactID: contactID,
		OwnerID:   ownerID,
		ThreadID:  threadID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// Encode serializes the message for the bus.
func (m InternalMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("events: marshal message: %w", err)
	}
	return data, nil
}
