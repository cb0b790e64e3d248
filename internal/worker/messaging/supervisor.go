package messagingworker

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/wolfman30/avito-asker/internal/messaging"
	"github.com/wolfman30/avito-asker/internal/observability/metrics"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

const defaultRestartDelay = time.Second

// Supervisor keeps one subscription alive, re-subscribing after failures.
type Supervisor struct {
	sub     messaging.Subscriber
	channel string
	handler messaging.Handler
	logger  *logging.Logger
	metrics *metrics.AskerMetrics
	limiter *rate.Limiter
}

// Option customizes the supervisor.
type Option func(*Supervisor)

// WithRestartDelay sets the minimum time between two subscription attempts.
func WithRestartDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithMetrics counts restarts.
func WithMetrics(m *metrics.AskerMetrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

func NewSupervisor(sub messaging.Subscriber, channel string, handler messaging.Handler, logger *logging.Logger, opts ...Option) *Supervisor {
	if sub == nil {
		panic("messagingworker: subscriber cannot be nil")
	}
	if handler == nil {
		panic("messagingworker: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Supervisor{
		sub:     sub,
		channel: channel,
		handler: handler,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(defaultRestartDelay), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled or the bus is closed. Any other listen
// failure is logged and the subscription is restarted without a retry limit.
func (s *Supervisor) Run(ctx context.Context) error {
	// the first attempt spends the burst token so every restart waits
	s.limiter.Allow()
	for {
		s.logger.Info("listening for inbound messages", "channel", s.channel)
		err := s.sub.Listen(ctx, s.channel, s.handler)
		switch {
		case err == nil, ctx.Err() != nil:
			s.logger.Info("listener stopped", "channel", s.channel)
			return nil
		case errors.Is(err, messaging.ErrBusClosed):
			s.logger.Warn("listener stopped: bus closed", "channel", s.channel)
			return err
		}

		s.logger.Warn("listener failed; restarting", "channel", s.channel, "error", err)
		s.metrics.ObserveListenRestart(s.channel)
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Info("listener stopped", "channel", s.channel)
			return nil
		}
	}
}
