// Package app wires the offer store, sync worker and sweeper into one object
// with an explicit lifecycle.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"offersync/internal/api"
	"offersync/internal/config"
	"offersync/internal/connectivity"
	"offersync/internal/domain"
	"offersync/internal/events"
	"offersync/internal/gateway"
	"offersync/internal/logging"
	"offersync/internal/repository"
	"offersync/internal/store"
	"offersync/internal/worker"

	"github.com/rs/zerolog"
)

// Deps are the external pieces an App runs against. Zero values are filled
// from the config.
type Deps struct {
	KV      domain.KVStore
	Gateway domain.OfferGateway
	Monitor *connectivity.Monitor
	Events  *events.EventBus
	Clock   func() time.Time
	Logger  *zerolog.Logger
}

type App struct {
	cfg    *config.Config
	logger *zerolog.Logger

	Store   *store.Store
	Worker  *worker.SyncWorker
	Sweeper *worker.Sweeper
	Monitor *connectivity.Monitor
	Prober  *connectivity.Prober
	Events  *events.EventBus
	API     *api.HTTPServer

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if deps.KV == nil {
		logger.Warn().Msg("no durable store configured, offer state will not survive restarts")
		deps.KV = repository.NewMemoryStore()
	}
	if deps.Monitor == nil {
		deps.Monitor = connectivity.NewMonitor(cfg.Connectivity.StartOffline, logging.Component(logger, "connectivity"))
	}
	if deps.Events == nil {
		deps.Events = events.NewEventBus()
	}
	if deps.Gateway == nil {
		deps.Gateway = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout,
			gateway.WithTokenSource(gateway.StaticToken(cfg.Gateway.Token)),
			gateway.WithRateLimit(cfg.Gateway.RPS, cfg.Gateway.Burst),
		)
	}

	opts := []store.Option{
		store.WithLogger(logging.Component(logger, "offer-store")),
		store.WithEvents(deps.Events),
		store.WithUndoWindow(cfg.Sync.UndoWindow),
		store.WithMaxRetries(cfg.Sync.MaxRetries),
	}
	if deps.Clock != nil {
		opts = append(opts, store.WithClock(deps.Clock))
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		Monitor: deps.Monitor,
		Events:  deps.Events,
	}
	a.Store = store.New(deps.KV, deps.Gateway, deps.Monitor, opts...)
	a.Worker = worker.NewSyncWorker(a.Store, deps.Gateway, deps.Monitor, worker.RetryPolicy{
		MaxRetries:    cfg.Sync.MaxRetries,
		SettleDelay:   cfg.Sync.SettleDelay,
		DrainInterval: cfg.Sync.DrainInterval,
	}, logging.Component(logger, "sync-worker"))
	a.Sweeper = worker.NewSweeper(a.Store, cfg.Sync.SweepInterval, logging.Component(logger, "sweeper"))

	if cfg.Connectivity.ProbeURL != "" {
		a.Prober = connectivity.NewProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval, deps.Monitor, logging.Component(logger, "prober"))
	}
	if cfg.API.Enabled {
		a.API = api.NewHTTPServer(cfg.API, a.Store, a.Worker, cfg.Gateway.UserID, logging.Component(logger, "http"))
	}

	return a, nil
}

// Start loads persisted state and starts background work. A failed load is
// logged and the app continues with whatever could be read.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	a.mu.Unlock()

	if err := a.Store.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		a.logger.Warn().Err(err).Msg("offer state partially loaded")
	}

	a.Sweeper.Start(ctx)
	a.Worker.Start(ctx)
	if a.Prober != nil {
		a.Prober.Start(ctx)
	}

	if a.API != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.API.Start(); err != nil {
				a.logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	if !a.Monitor.IsOffline() {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.catchUp(ctx)
		}()
	}

	a.logger.Info().Msg("offersync started")
	return nil
}

// catchUp pushes queued decisions left from a previous run and then pulls
// the current offer list.
func (a *App) catchUp(ctx context.Context) {
	a.Worker.Drain(ctx)

	userID := a.cfg.Gateway.UserID
	if userID == "" {
		return
	}
	if err := a.Store.FetchOffers(ctx, userID); err != nil {
		a.logger.Warn().Err(err).Msg("initial offer refresh failed")
	}
}

// Stop tears everything down in reverse order. It is safe to call twice.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started || a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	a.mu.Unlock()

	var err error
	if a.API != nil {
		err = a.API.Shutdown(ctx)
	}
	if a.Prober != nil {
		a.Prober.Stop()
	}
	a.Worker.Stop()
	a.Sweeper.Stop()
	a.cancel()
	a.wg.Wait()

	a.logger.Info().Msg("offersync stopped")
	return err
}
