package conversationworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/avito-asker/internal/conversation"
	"github.com/wolfman30/avito-asker/internal/events"
	"github.com/wolfman30/avito-asker/internal/leads"
	"github.com/wolfman30/avito-asker/internal/messaging"
	"github.com/wolfman30/avito-asker/internal/observability/metrics"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

const (
	defaultContactChannel  = "avito:outbound"
	defaultOperatorChannel = "operator:outbound"
	defaultLockTTL         = 30 * time.Second
)

// Router drains inbound events, runs the engine and applies its decisions.
// Every event is handled in its own goroutine; work for one contact is
// serialized by a per-contact lock.
type Router struct {
	engine    *conversation.Engine
	repo      leads.Repository
	publisher messaging.Publisher
	processed events.ProcessedStore
	locks     *contactLocks
	metrics   *metrics.AskerMetrics
	logger    *logging.Logger

	contactChannel  string
	operatorChannel string

	wg sync.WaitGroup
}

var _ messaging.Handler = (*Router)(nil)

type routerConfig struct {
	processed       events.ProcessedStore
	locker          DistributedLocker
	lockTTL         time.Duration
	metrics         *metrics.AskerMetrics
	contactChannel  string
	operatorChannel string
}

// RouterOption customizes router behavior.
type RouterOption func(*routerConfig)

// WithProcessedStore enables dedupe on inbound message_id.
func WithProcessedStore(store events.ProcessedStore) RouterOption {
	return func(cfg *routerConfig) {
		cfg.processed = store
	}
}

// WithDistributedLocker adds a cross-process lock on top of the in-process contact lock.
func WithDistributedLocker(locker DistributedLocker) RouterOption {
	return func(cfg *routerConfig) {
		cfg.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry and the time spent waiting for it.
func WithLockTTL(ttl time.Duration) RouterOption {
	return func(cfg *routerConfig) {
		if ttl > 0 {
			cfg.lockTTL = ttl
		}
	}
}

// WithMetrics wires Prometheus counters.
func WithMetrics(m *metrics.AskerMetrics) RouterOption {
	return func(cfg *routerConfig) {
		cfg.metrics = m
	}
}

// WithChannels overrides the contact and operator channel names.
func WithChannels(contact, operator string) RouterOption {
	return func(cfg *routerConfig) {
		if contact != "" {
			cfg.contactChannel = contact
		}
		if operator != "" {
			cfg.operatorChannel = operator
		}
	}
}

// NewRouter wires the router around its collaborators.
func NewRouter(engine *conversation.Engine, repo leads.Repository, publisher messaging.Publisher, logger *logging.Logger, opts ...RouterOption) *Router {
	if engine == nil {
		panic("conversationworker: engine cannot be nil")
	}
	if repo == nil {
		panic("conversationworker: lead repository cannot be nil")
	}
	if publisher == nil {
		panic("conversationworker: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := routerConfig{
		lockTTL:         defaultLockTTL,
		contactChannel:  defaultContactChannel,
		operatorChannel: defaultOperatorChannel,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Router{
		engine:          engine,
		repo:            repo,
		publisher:       publisher,
		processed:       cfg.processed,
		locks:           newContactLocks(cfg.locker, cfg.lockTTL, logger),
		metrics:         cfg.metrics,
		logger:          logger,
		contactChannel:  cfg.contactChannel,
		operatorChannel: cfg.operatorChannel,
	}
}

// HandleMessage implements messaging.Handler by dispatching the payload.
func (r *Router) HandleMessage(ctx context.Context, payload []byte) {
	r.Dispatch(ctx, payload)
}

// Dispatch processes payload on a new goroutine and returns immediately. The
// unit of work is detached from ctx cancellation so a shutdown does not cut
// it between publish and commit.
func (r *Router) Dispatch(ctx context.Context, payload []byte) {
	data := append([]byte(nil), payload...)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Handle(context.WithoutCancel(ctx), data)
	}()
}

// Wait blocks until every dispatched unit of work has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Handle processes one inbound payload synchronously. Failures are logged,
// counted and returned; nothing is retried.
func (r *Router) Handle(ctx context.Context, payload []byte) (err error) {
	start := time.Now()
	outcome := metrics.OutcomeProcessed
	defer func() {
		if rec := recover(); rec != nil {
			outcome = metrics.OutcomePanic
			err = fmt.Errorf("conversationworker: panic: %v", rec)
			r.logger.Error("panic while handling inbound message", "panic", rec)
		}
		r.metrics.ObserveInbound(outcome, time.Since(start).Seconds())
	}()

	evt, err := events.DecodeInbound(payload)
	if err != nil {
		outcome = metrics.OutcomeMalformed
		r.logger.Warn("dropping malformed inbound message", "error", err)
		return err
	}
	logger := r.logger.With("contact_id", evt.SenderID, "message_id", evt.MessageID)

	if evt.MessageID != "" && r.processed != nil {
		claimed, claimErr := r.processed.Claim(ctx, evt.MessageID)
		if claimErr != nil {
			outcome = metrics.OutcomeStoreError
			logger.Error("failed to check processed store", "error", claimErr)
			return claimErr
		}
		if !claimed {
			outcome = metrics.OutcomeDuplicate
			logger.Info("skipping duplicate inbound message")
			return nil
		}
		defer func() {
			if err == nil {
				return
			}
			if relErr := r.processed.Release(context.WithoutCancel(ctx), evt.MessageID); relErr != nil {
				logger.Warn("failed to release processed claim", "error", relErr)
			}
		}()
	}

	unlock, err := r.locks.Lock(ctx, evt.SenderID)
	if err != nil {
		outcome = metrics.OutcomeStoreError
		logger.Error("failed to acquire contact lock", "error", err)
		return err
	}
	defer unlock()

	outcome, err = r.process(ctx, logger, evt)
	return err
}

func (r *Router) process(ctx context.Context, logger *logging.Logger, evt events.InboundEvent) (string, error) {
	lead, err := r.repo.Get(ctx, evt.SenderID)
	switch {
	case errors.Is(err, leads.ErrLeadNotFound):
		lead = r.engine.NewLead(evt)
	case err != nil:
		logger.Error("failed to load lead", "error", err)
		return metrics.OutcomeStoreError, err
	}

	decision, err := r.engine.Decide(lead, evt)
	if err != nil {
		logger.Error("conversation engine rejected transition", "error", err, "state", lead.CurrentState)
		return metrics.OutcomeEngineError, err
	}

	for _, out := range decision.Outbound {
		if err := r.publish(ctx, out); err != nil {
			logger.Error("failed to publish outbound message", "error", err, "state", lead.CurrentState)
			return metrics.OutcomePublishFail, err
		}
	}

	if decision.Passthrough {
		logger.Info("forwarded message from completed lead", "state", lead.CurrentState)
		return metrics.OutcomePassthrough, nil
	}
	if !decision.Changed {
		return metrics.OutcomeProcessed, nil
	}

	if lead.IsNew() {
		_, err = r.repo.Insert(ctx, decision.Lead)
	} else {
		_, err = r.repo.Update(ctx, decision.Lead)
	}
	if err != nil {
		if errors.Is(err, leads.ErrConflict) || errors.Is(err, leads.ErrLeadExists) || errors.Is(err, leads.ErrLeadNotFound) {
			logger.Warn("lead changed concurrently; dropping transition", "error", err, "expected_version", lead.Version)
			return metrics.OutcomeConflict, err
		}
		logger.Error("failed to commit lead", "error", err)
		return metrics.OutcomeStoreError, err
	}

	for _, state := range decision.Path {
		r.metrics.ObserveStateEntered(state)
	}
	logger.Info("lead advanced",
		"from_state", lead.CurrentState,
		"state", decision.Lead.CurrentState,
		"outbound", len(decision.Outbound),
		"new_lead", lead.IsNew(),
	)
	return metrics.OutcomeProcessed, nil
}

func (r *Router) publish(ctx context.Context, out conversation.Outbound) error {
	channel := r.contactChannel
	if out.Target == conversation.TargetOperator {
		channel = r.operatorChannel
	}
	payload, err := out.Message.Encode()
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, channel, payload); err != nil {
		return err
	}
	r.metrics.ObserveOutbound(channel, string(out.Message.Kind))
	return nil
}
