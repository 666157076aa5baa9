// Package app wires the queue, connectivity monitor, replay transport,
// orchestrator, scheduler and agent API from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/api"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/config"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/connectivity"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/crypto"
	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/queue"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/server"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/storage"
	syncpkg "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/sync"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/sync/scheduler"
)

// App holds the wired components. Fields are exported for the CLI.
type App struct {
	Config       config.Config
	KV           storage.KV
	Store        *queue.Store
	Monitor      *connectivity.Monitor
	Client       *api.Client
	Orchestrator *syncpkg.Orchestrator
	Scheduler    *scheduler.Scheduler
	Hydrator     *api.Hydrator
	Hub          *server.Hub

	unsubscribe []func()
}

// Options tunes Build for the calling command.
type Options struct {
	// Online is the monitor's initial state.
	Online bool
}

// Build opens storage, loads the persisted queue and wires every component.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	kv, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("open %s storage", cfg.Storage.Driver), err)
	}

	var sealer *crypto.Sealer
	if cfg.Storage.EncryptionKey != "" {
		sealer, err = crypto.NewSealer(cfg.Storage.EncryptionKey)
		if err != nil {
			_ = kv.Close()
			return nil, apperrors.Wrap(apperrors.ErrCryptoFailed, "init queue sealing", err)
		}
	}

	store := queue.NewStore(kv, queue.Options{
		StorageKey: cfg.Queue.StorageKey,
		MaxSize:    cfg.Queue.MaxSize,
		Sealer:     sealer,
	})
	if err := store.Init(ctx); err != nil {
		_ = kv.Close()
		return nil, err
	}

	client, err := api.NewClient(api.ClientOptions{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout.Duration,
	})
	if err != nil {
		_ = kv.Close()
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "configure api client", err)
	}
	replayer, err := api.NewReplayer(cfg.Replay.Mode, client)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	monitor := connectivity.NewMonitor(opts.Online)
	hub := server.NewHub()

	orch := syncpkg.NewOrchestrator(store, monitor, replayer, syncpkg.Options{
		MaxRetries:  cfg.Queue.MaxRetries,
		GracePeriod: gracePeriod(cfg.Queue.GracePeriod.Duration),
		Notifier:    hub,
	})

	schedCfg := &scheduler.SchedulerConfig{
		QueueInterval: cfg.Scheduler.QueueInterval.Duration,
		Watch: connectivity.WatchOptions{
			Interval:         cfg.Connectivity.ProbeInterval.Duration,
			FailureThreshold: cfg.Connectivity.FailureThreshold,
		},
	}
	if cfg.Connectivity.Probe {
		schedCfg.Source = client
	}
	sched := scheduler.NewScheduler(orch, monitor, store, schedCfg)

	a := &App{
		Config:       cfg,
		KV:           kv,
		Store:        store,
		Monitor:      monitor,
		Client:       client,
		Orchestrator: orch,
		Scheduler:    sched,
		Hydrator:     &api.Hydrator{Backend: client, Store: store},
		Hub:          hub,
	}
	a.unsubscribe = append(a.unsubscribe,
		store.Subscribe(hub.BroadcastQueueEvent),
		monitor.Subscribe(hub.BroadcastConnectivity),
	)

	logging.Info("Offline queue agent ready", map[string]interface{}{
		"driver":      cfg.Storage.Driver,
		"replay_mode": cfg.Replay.Mode,
		"entries":     store.Len(),
		"sealed":      sealer != nil,
	})
	return a, nil
}

// gracePeriod maps the config value onto sync.Options, where zero means the
// default and a negative value means remove immediately.
func gracePeriod(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}

// Server builds the agent API bound to the configured listen address.
// background bounds the passes started by enqueue requests.
func (a *App) Server(background context.Context) *server.Server {
	handler := server.NewQueueHandler(background, a.Store, a.Scheduler, a.Hydrator)
	return server.New(a.Config.Server.Listen, handler, a.Hub)
}

// Probe checks the backend once and records the result on the monitor.
func (a *App) Probe(ctx context.Context) bool {
	err := a.Client.Probe(ctx)
	if err != nil {
		logging.Warn("Backend unreachable", map[string]interface{}{"error": err.Error()})
	}
	a.Monitor.Set(err == nil)
	return err == nil
}

// Close stops background work, removes entries waiting out the grace
// period, flushes the queue and closes storage.
func (a *App) Close(ctx context.Context) error {
	a.Scheduler.Stop()
	a.Orchestrator.Close()
	for _, fn := range a.unsubscribe {
		fn()
	}
	flushErr := a.Store.Close(ctx)
	closeErr := a.KV.Close()
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "close storage", closeErr)
	}
	return nil
}
