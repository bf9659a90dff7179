// Package daemon composes the whole host: runtime bridge, executor, façade,
// credential store, watcher and ingest engine, wired through fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/whitemax/maxd/internal/bus"
	"github.com/whitemax/maxd/internal/cache"
	"github.com/whitemax/maxd/internal/cred"
	"github.com/whitemax/maxd/internal/executor"
	"github.com/whitemax/maxd/internal/lock"
	"github.com/whitemax/maxd/internal/logging"
	"github.com/whitemax/maxd/internal/mx"
	"github.com/whitemax/maxd/internal/session"
	"github.com/whitemax/maxd/internal/status"
	intsync "github.com/whitemax/maxd/internal/sync"
	"github.com/whitemax/maxd/internal/watch"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	// RuntimeCommand overrides the runtime host binary; empty = bundled
	// default.
	RuntimeCommand string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideCredStore,
			provideExecutor,
			provideBridge,
			provideCache,
			provideClient,
			provideController,
			provideEngine,
			provideWatcher,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(session.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideCredStore(p Params, logger *zap.Logger) (*cred.Store, *cred.DB, error) {
	dbPath := session.CredDBPath(p.ProfileName)
	db, err := cred.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("credential store initialized", zap.String("path", dbPath))
	return cred.NewStore(db), db, nil
}

func provideExecutor(logger *zap.Logger) *executor.Executor {
	return executor.New(logger)
}

func provideBridge(p Params, logger *zap.Logger) (*mx.Bridge, error) {
	return mx.NewBridge(p.RuntimeCommand, session.WorkDir(p.ProfileName), logger)
}

func provideCache() *cache.Cache {
	return cache.New()
}

func provideClient(bridge *mx.Bridge, exec *executor.Executor, store *cache.Cache, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *mx.Client {
	return mx.NewClient(bridge, exec, store, b, machine, logger)
}

func provideController(p Params, client *mx.Client, store *cred.Store, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *session.Controller {
	return session.NewController(client, store, machine, b, logger, session.WorkDir(p.ProfileName))
}

func provideEngine(store *cache.Cache, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.New(store, b, logger)
}

func provideWatcher(p Params, engine *intsync.Engine, logger *zap.Logger) *watch.Watcher {
	return watch.New(session.EventsDir(p.ProfileName), engine.Handle, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, lk *lock.Lock, db *cred.DB, bridge *mx.Bridge, exec *executor.Executor, client *mx.Client, ctrl *session.Controller, watcher *watch.Watcher, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := exec.Initialize(); err != nil {
				return err
			}

			// Session creation and credential restore decide whether the
			// daemon comes up authenticated or waiting for a login.
			if err := ctrl.Restore(ctx); err != nil {
				return err
			}

			eventsDir := session.EventsDir(p.ProfileName)
			confirmed, err := client.RegisterEventCallbacks(ctx, eventsDir)
			if err != nil {
				return err
			}
			logger.Info("push events registered", zap.String("dir", confirmed))

			return watcher.Start()
		},
		OnStop: func(ctx context.Context) error {
			watcher.Stop()
			if err := client.StopClient(ctx); err != nil {
				logger.Warn("stop client failed", zap.Error(err))
			}
			exec.Close()
			if err := bridge.Close(); err != nil {
				logger.Warn("runtime shutdown failed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing credential store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
