package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

// RedisBus is a Bus over Redis PUBLISH/SUBSCRIBE.
type RedisBus struct {
	client *redis.Client
	logger *logging.Logger
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus wraps a Redis client.
func NewRedisBus(client *redis.Client, logger *logging.Logger) *RedisBus {
	if client == nil {
		panic("messaging: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisBus{client: client, logger: logger}
}

// Publish sends payload to channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("messaging: publish to %s: %w", channel, err)
	}
	return nil
}

// Listen subscribes to channel and hands every message to h until ctx is
// cancelled or the connection fails. It does not reconnect on its own.
func (b *RedisBus) Listen(ctx context.Context, channel string, h Handler) error {
	sub := b.client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("messaging: subscribe to %s: %w", channel, err)
	}
	b.logger.Info("subscribed", "channel", channel)

	// ReceiveMessage only notices cancellation through a closed connection.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("messaging: receive on %s: %w", channel, err)
		}
		h.HandleMessage(ctx, []byte(msg.Payload))
	}
}
