package conversationworker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/avito-asker/cmd/mainconfig"
	apirouter "github.com/wolfman30/avito-asker/internal/api/router"
	appbootstrap "github.com/wolfman30/avito-asker/internal/app/bootstrap"
	appconfig "github.com/wolfman30/avito-asker/internal/config"
	"github.com/wolfman30/avito-asker/internal/conversation"
	"github.com/wolfman30/avito-asker/internal/leads"
	"github.com/wolfman30/avito-asker/internal/observability/metrics"
	messagingworker "github.com/wolfman30/avito-asker/internal/worker/messaging"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

// Run starts the asker service and blocks until ctx is canceled or the
// inbound listener stops for good. A non-nil error means startup failed or
// the service could not keep running.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := appbootstrap.NewRuntime(ctx, cfg, logger, mainconfig.LoadAWSConfig)
	if err != nil {
		return fmt.Errorf("conversation worker: %w", err)
	}
	defer rt.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	askerMetrics := metrics.NewAskerMetrics(reg)

	engine := conversation.NewEngine(rt.Form, conversation.WithMaxChainLength(cfg.MaxChainLength))

	routerOpts := []RouterOption{
		WithProcessedStore(rt.Processed),
		WithLockTTL(cfg.ContactLockTTL),
		WithMetrics(askerMetrics),
		WithChannels(cfg.ContactChannel, cfg.OperatorChannel),
	}
	if cfg.DistributedLocks && rt.Redis != nil {
		routerOpts = append(routerOpts, WithDistributedLocker(NewRedisLocker(rt.Redis, cfg.KeyPrefix)))
	}
	router := NewRouter(engine, rt.Leads, rt.Bus, logger, routerOpts...)

	supervisor := messagingworker.NewSupervisor(rt.Bus, cfg.InboundChannel, router, logger,
		messagingworker.WithRestartDelay(cfg.ListenRestartDelay),
		messagingworker.WithMetrics(askerMetrics),
	)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: apirouter.New(&apirouter.Config{
			Logger:         logger,
			LeadsHandler:   leads.NewHandler(rt.Leads, logger),
			MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			Readiness:      rt.Ready,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- supervisor.Run(runCtx)
	}()

	logger.Info("asker started",
		"inbound_channel", cfg.InboundChannel,
		"contact_channel", cfg.ContactChannel,
		"operator_channel", cfg.OperatorChannel,
		"distributed_locks", cfg.DistributedLocks,
	)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("conversation worker: ops server: %w", err)
	case err := <-listenDone:
		runErr = err
		listenDone = nil
	}

	logger.Info("shutting down asker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if listenDone != nil {
		select {
		case <-listenDone:
		case <-shutdownCtx.Done():
			logger.Error("listener did not stop in time", "error", shutdownCtx.Err())
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server forced to shutdown", "error", err)
	}

	waitCh := make(chan struct{})
	go func() {
		router.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		logger.Info("asker stopped")
	case <-shutdownCtx.Done():
		logger.Error("asker shutdown timed out; in-flight messages abandoned", "error", shutdownCtx.Err())
	}
	return runErr
}
