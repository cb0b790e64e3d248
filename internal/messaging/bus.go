package messaging

import (
	"context"
	"errors"
)

// ErrBusClosed is returned by Listen and Publish after the bus was closed.
var ErrBusClosed = errors.New("messaging: bus closed")

// Handler receives every payload delivered on a subscribed channel. It is
// called from the receive loop and must not block on long work.
type Handler interface {
	HandleMessage(ctx context.Context, payload []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, payload []byte) {
	f(ctx, payload)
}

// Publisher sends a payload to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber runs a receive loop on a channel. Listen blocks until ctx is
// cancelled, in which case it returns nil, or until the subscription fails.
type Subscriber interface {
	Listen(ctx context.Context, channel string, h Handler) error
}

// Bus is a transport that can both publish and subscribe.
type Bus interface {
	Publisher
	Subscriber
}
