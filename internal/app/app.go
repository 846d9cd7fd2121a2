// Package app wires the configuration, stores, metrics and HTTP surface
// into one runnable unit. All dependencies are constructed here and passed
// down explicitly.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"shiftboard/internal/config"
	"shiftboard/internal/httpapi"
	"shiftboard/internal/metrics"
	"shiftboard/internal/utils"
	"shiftboard/store"
	"shiftboard/store/failover"
	"shiftboard/store/local"
	"shiftboard/store/postgres"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the service.
type App struct {
	Config   config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Gateway *postgres.Gateway
	Local   *local.Store
	Store   *failover.Store
	Server  *httpapi.Server

	debouncer *debouncer
}

// New builds the full dependency graph from the configuration. Nothing is
// dialed yet; remote connectivity problems surface per-operation so the
// service starts even when the hosted database is down.
func New(cfg config.Config) (*App, error) {
	logger := utils.NewLogger(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		return nil, utils.ErrDatabaseURLMissing()
	}

	registry := prometheus.NewRegistry()
	instruments := metrics.New(registry)

	fallbackPath := cfg.FallbackPath
	if fallbackPath == "" {
		var err error
		fallbackPath, err = local.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	localStore, err := local.Open(fallbackPath)
	if err != nil {
		return nil, utils.WrapWithSuggestion(err,
			"Check that the fallback path is writable, or set fallback_path in the config file")
	}

	gateway, err := postgres.Open(cfg.DatabaseURL, cfg.RequestTimeout(), logger)
	if err != nil {
		localStore.Close()
		return nil, err
	}

	failoverStore := failover.New(gateway, localStore, logger,
		failover.WithMetrics(instruments),
		failover.WithSubscriber(gateway),
	)

	server := httpapi.NewServer(failoverStore, localStore, logger,
		httpapi.WithMetrics(instruments, registry),
		httpapi.WithCORSOrigins(cfg.CORSOrigins),
		httpapi.WithPinger(gateway),
	)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Metrics:  instruments,
		Gateway:  gateway,
		Local:    localStore,
		Store:    failoverStore,
		Server:   server,
	}
	app.debouncer = newDebouncer(cfg.ReloadDebounce(), server.Hub().Broadcast)
	return app, nil
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	// Replay whatever a previous run left queued before taking traffic.
	a.replayOutbox()

	a.Gateway.OnReconnect(func() {
		a.replayOutbox()
	})

	sub, err := a.Store.SubscribeChanges(ctx, a.debouncer.Notify)
	if err != nil {
		a.Logger.WithError(err).Warn("change feed unavailable, clients will poll")
	} else {
		defer sub.Unsubscribe()
	}

	stopTicker := a.startReplayTicker(ctx)
	defer stopTicker()

	httpServer := &http.Server{
		Addr:    a.Config.ListenAddr,
		Handler: a.Server.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.WithField("addr", a.Config.ListenAddr).Info("http api listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.Server.Hub().Close()
	return nil
}

// Close releases the stores.
func (a *App) Close() {
	a.debouncer.Stop()
	if err := a.Gateway.Close(); err != nil {
		a.Logger.WithError(err).Warn("failed to close remote gateway")
	}
	if err := a.Local.Close(); err != nil {
		a.Logger.WithError(err).Warn("failed to close fallback store")
	}
}

// startReplayTicker periodically retries queued offline writes. Returns a
// stop function; the interval is configurable and zero disables the timer.
func (a *App) startReplayTicker(ctx context.Context) func() {
	interval := a.Config.OutboxReplayInterval()
	if interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				a.replayOutbox()
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func (a *App) replayOutbox() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	replayed, err := a.Store.ReplayOutbox(ctx)
	if err != nil && !store.ShouldFallback(err) {
		a.Logger.WithError(err).Warn("outbox replay failed")
	}
	if replayed > 0 {
		// Remote state moved; tell clients to reload everything.
		a.Server.Hub().Broadcast(store.ChangeEvent{Action: "RELOAD"})
	}
}
