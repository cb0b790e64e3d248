package messaging

import (
	"context"
	"sync"
)

const subscriberBufferSize = 64

// MemoryBus is an in-process Bus used by tests and BUS_BACKEND=memory.
// Publish blocks while a subscriber's buffer is full.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []byte]struct{}
	closed bool
	done   chan struct{}
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[chan []byte]struct{}),
		done: make(chan struct{}),
	}
}

// Publish delivers payload to every current subscriber of channel.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := make([]chan []byte, 0, len(b.subs[channel]))
	for ch := range b.subs[channel] {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	data := append([]byte(nil), payload...)
	for _, ch := range targets {
		select {
		case ch <- data:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrBusClosed
		}
	}
	return nil
}

// Listen receives from channel until ctx is cancelled or the bus is closed.
func (b *MemoryBus) Listen(ctx context.Context, channel string, h Handler) error {
	ch := make(chan []byte, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs[channel], ch)
		if len(b.subs[channel]) == 0 {
			delete(b.subs, channel)
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return ErrBusClosed
		case payload := <-ch:
			h.HandleMessage(ctx, payload)
		}
	}
}

// Subscribers reports how many listeners are attached to channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close makes every Listen return ErrBusClosed. It is safe to call multiple times.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}
