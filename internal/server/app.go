// Package server wires the teamsync server together: PostgreSQL
// repositories, the Redis cache and lease store, the event bus, the
// background task runner and the HTTP and gRPC endpoints. It also handles
// graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/logging"
	"github.com/dmitrijs2005/teamsync/internal/server/cache"
	"github.com/dmitrijs2005/teamsync/internal/server/config"
	"github.com/dmitrijs2005/teamsync/internal/server/events"
	"github.com/dmitrijs2005/teamsync/internal/server/httpapi"
	"github.com/dmitrijs2005/teamsync/internal/server/importer"
	"github.com/dmitrijs2005/teamsync/internal/server/invalidation"
	"github.com/dmitrijs2005/teamsync/internal/server/locks"
	"github.com/dmitrijs2005/teamsync/internal/server/metrics"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
	"github.com/dmitrijs2005/teamsync/internal/server/tasks"

	gs "github.com/dmitrijs2005/teamsync/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	cache   *cache.Store
	bus     *events.Bus
	locks   *locks.Coordinator
	tasks   *tasks.Runner
	http    *httpapi.Server
	health  *gs.HealthServer
	closers []func() error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogFormat, os.Stdout)
	m := metrics.New()

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	app.closers = append(app.closers, db.Close)

	app.cache = cache.NewStore(cache.Config{
		Addr:             c.RedisAddr,
		MaxValueBytes:    c.CacheMaxValueBytes,
		ReconnectBase:    c.CacheReconnectBase,
		ReconnectMax:     c.CacheReconnectMax,
		ReconnectRetries: c.CacheReconnectRetries,
	}, logger, m)
	app.closers = append(app.closers, app.cache.Close)

	app.bus = events.NewBus(64, logger, m)

	var leaseStore locks.Store = locks.NewMemoryStore()
	if c.LeaseStore == "redis" {
		pool := locks.NewPool(c.RedisAddr, 2*time.Second)
		app.closers = append(app.closers, pool.Close)
		leaseStore = locks.NewRedisStore(pool)
	}
	app.locks = locks.NewCoordinator(leaseStore, app.bus, c.LeaseTTL, logger, locks.WithMetrics(m))
	app.bus.OnLastDisconnect(func(ctx context.Context, userID string) {
		app.locks.ReleaseAllFor(ctx, userID)
	})

	app.tasks = tasks.NewRunner(tasks.Config{Workers: c.TaskWorkers}, logger, m)

	inv := invalidation.New(app.cache, logger,
		invalidation.WithResolver(rm.Boards(db)),
		invalidation.WithMetrics(m))

	deps := services.Deps{
		DB:       db,
		Repos:    rm,
		Cache:    app.cache,
		CacheTTL: c.CacheTTL,
		Guard:    app.locks,
		Bus:      app.bus,
		Purger:   inv,
		Tasks:    app.tasks,
		Logger:   logger,
	}

	var imp services.Importer
	if i, err := importer.New(ctx, importer.Config{
		User:         c.S3RootUser,
		Password:     c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	}); err != nil {
		logger.Warn(ctx, "imports disabled", "error", err)
	} else {
		imp = i
	}

	secret := []byte(c.SecretKey)
	app.http = httpapi.NewServer(httpapi.Options{
		Address: c.EndpointAddrHTTP,
		Sales:   services.NewSalesService(deps, imp),
		Boards:  services.NewBoardService(deps),
		Locks:   app.locks,
		Events:  events.NewWSHandler(app.bus, httpapi.UserIdentifier(secret), logger),
		Metrics: m,
		Secret:  secret,
		Logger:  logger,
	})

	app.health = gs.NewHealthServer(c.EndpointAddrGRPC, logger)
	app.cache.OnReadyChange(func(ready bool) {
		app.health.SetServing(gs.CacheService, ready)
	})

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.cache.Start(ctx)
	app.health.SetServing(gs.CacheService, app.cache.IsReady())
	app.tasks.Start(context.WithoutCancel(ctx))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.locks.Run(ctx, app.config.LeaseSweepInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.health.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	app.tasks.Stop()
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	app.logger.Info(ctx, "Stopped")
}
