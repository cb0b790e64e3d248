package messagingworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/avito-asker/internal/messaging"
	"github.com/wolfman30/avito-asker/internal/observability/metrics"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

// scriptedSubscriber returns the queued results in order, then blocks until ctx is done.
type scriptedSubscriber struct {
	mu      sync.Mutex
	results []error
	calls   []time.Time
}

func (s *scriptedSubscriber) Listen(ctx context.Context, channel string, h messaging.Handler) error {
	s.mu.Lock()
	s.calls = append(s.calls, time.Now())
	if len(s.results) > 0 {
		err := s.results[0]
		s.results = s.results[1:]
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (s *scriptedSubscriber) callTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.calls...)
}

func restartCount(t *testing.T, reg *prometheus.Registry, channel string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "asker_supervisor_listen_restarts_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "channel" && lp.GetValue() == channel {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var noopHandler = messaging.HandlerFunc(func(context.Context, []byte) {})

func TestSupervisor_RestartsAfterFailures(t *testing.T) {
	sub := &scriptedSubscriber{results: []error{errors.New("conn reset"), errors.New("conn reset")}}
	reg := prometheus.NewRegistry()
	m := metrics.NewAskerMetrics(reg)
	delay := 20 * time.Millisecond
	sup := NewSupervisor(sub, "avito:inbound", noopHandler, logging.Nop(), WithRestartDelay(delay), WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sub.callTimes()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancellation")
	}

	calls := sub.callTimes()
	for i := 1; i < len(calls); i++ {
		// limiter granularity allows a little slack
		require.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), delay-5*time.Millisecond)
	}
	require.Equal(t, 2.0, restartCount(t, reg, "avito:inbound"))
}

func TestSupervisor_ReturnsOnGracefulStop(t *testing.T) {
	sub := &scriptedSubscriber{results: []error{nil}}
	sup := NewSupervisor(sub, "avito:inbound", noopHandler, logging.Nop())

	require.NoError(t, sup.Run(context.Background()))
	require.Len(t, sub.callTimes(), 1)
}

func TestSupervisor_StopsWhenBusClosed(t *testing.T) {
	sub := &scriptedSubscriber{results: []error{messaging.ErrBusClosed}}
	sup := NewSupervisor(sub, "avito:inbound", noopHandler, logging.Nop())

	err := sup.Run(context.Background())
	require.ErrorIs(t, err, messaging.ErrBusClosed)
}

func TestSupervisor_CancelDuringBackoff(t *testing.T) {
	sub := &scriptedSubscriber{results: []error{errors.New("boom")}}
	sup := NewSupervisor(sub, "avito:inbound", noopHandler, logging.Nop(), WithRestartDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sub.callTimes()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
	require.Len(t, sub.callTimes(), 1)
}

func TestSupervisor_WithMemoryBus(t *testing.T) {
	bus := messaging.NewMemoryBus()
	received := make(chan string, 1)
	handler := messaging.HandlerFunc(func(_ context.Context, payload []byte) {
		received <- string(payload)
	})
	sup := NewSupervisor(bus, "avito:inbound", handler, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sup.Run(ctx) }()

	require.Eventually(t, func() bool { return bus.Subscribers("avito:inbound") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(ctx, "avito:inbound", []byte(`{"sender_id":"c1"}`)))
	select {
	case got := <-received:
		require.Equal(t, `{"sender_id":"c1"}`, got)
	case <-time.After(time.Second):
		t.Fatalf("handler was not called")
	}
}

func TestNewSupervisor_PanicsWithoutSubscriber(t *testing.T) {
	require.Panics(t, func() { NewSupervisor(nil, "c", noopHandler, nil) })
	require.Panics(t, func() { NewSupervisor(&scriptedSubscriber{}, "c", nil, nil) })
}
