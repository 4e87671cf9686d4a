package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"metamcp/internal/aggregator"
	"metamcp/internal/config"
	"metamcp/internal/filter"
	"metamcp/internal/invalidation"
	"metamcp/internal/logstore"
	"metamcp/internal/mcpserver"
	"metamcp/internal/pool"
	"metamcp/internal/store"
	"metamcp/internal/warmup"
	"metamcp/pkg/logging"
)

const (
	httpShutdownTimeout = 5 * time.Second

	// poolShutdownTimeout bounds the teardown of pooled connections. Stdio
	// child processes that refuse to exit must not wedge shutdown forever.
	poolShutdownTimeout = 30 * time.Second
)

// Options select how the application is bootstrapped.
type Options struct {
	// ConfigPath is the optional YAML config file. A missing file falls back
	// to defaults plus environment overrides.
	ConfigPath string

	// DefinitionsPath is the YAML file holding server and namespace
	// definitions. It is watched for changes while the process runs.
	DefinitionsPath string

	Debug  bool
	Silent bool
}

// Application owns every long-lived component of a metamcp process.
type Application struct {
	cfg config.MetaConfig

	store    *store.InMemoryStore
	logStore *logstore.Store
	mcpPool  *pool.McpPool
	metaPool *aggregator.MetaPool
	warmer   *warmup.Warmer
	watcher  *invalidation.FileWatcher
	host     *EndpointHost

	httpServer *http.Server
}

// New performs the full bootstrap sequence: logging, configuration,
// definition loading, and component wiring. Nothing connects to a back-end
// server yet; that happens during Run's warmup phase.
func New(opts Options) (*Application, error) {
	logLevel := logging.LevelInfo
	if opts.Debug {
		logLevel = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stdout
	if opts.Silent {
		logOutput = io.Discard
	}
	logging.Init(logLevel, logOutput)

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration")
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.DefinitionsPath == "" {
		return nil, fmt.Errorf("no definitions file given")
	}
	st, err := store.NewStoreFromFile(opts.DefinitionsPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load definitions from %s", opts.DefinitionsPath)
		return nil, fmt.Errorf("failed to load definitions from %s: %w", opts.DefinitionsPath, err)
	}

	logStore := logstore.New(cfg.Log.MaxEntries)

	// Each bootstrap owns the process-wide logging state, sinks included;
	// warnings and errors from any subsystem become queryable log events.
	logging.ResetSinks()
	logging.AddSink(logstore.NewLoggingSink(logStore))

	connector := mcpserver.NewConnector(
		cfg.Pool.ConnectRetries,
		cfg.Pool.ConnectRetryDelay,
		mcpserver.FactoryOptions{
			TransformLocalhostToDockerInternal: cfg.TransformLocalhostToDockerInternal,
		},
		logStore,
	)

	mcpPool := pool.NewMcpPool(connector, cfg.Pool.IdleCountPerServer)

	cache := filter.NewCache(cfg.Filter.CacheTTL)
	toolFilter := filter.New(cache, st, aggregator.NewStoreResolver(st), cfg.Filter.InactiveMessage)

	metaPool := aggregator.NewMetaPool(mcpPool, st, toolFilter, cfg.Pool.IdleCountPerServer).
		WithLogStore(logStore)

	host := NewEndpointHost(st, mcpPool, metaPool, logStore)

	router := invalidation.NewRouter(mcpPool, metaPool, st, cache).
		WithEndpoints(host)
	watcher := invalidation.NewFileWatcher(opts.DefinitionsPath, st, router, invalidation.DefaultDebounceInterval)

	return &Application{
		cfg:      cfg,
		store:    st,
		logStore: logStore,
		mcpPool:  mcpPool,
		metaPool: metaPool,
		warmer:   warmup.New(st, st, mcpPool, metaPool),
		watcher:  watcher,
		host:     host,
	}, nil
}

// Run warms the pools, starts the definition watcher and the HTTP listener,
// and blocks until the context is cancelled or the listener fails. Shutdown
// is graceful: the listener drains first, then pooled connections are torn
// down under a watchdog timeout.
func (a *Application) Run(ctx context.Context) error {
	if err := a.warmer.Run(ctx); err != nil {
		logging.Warn("App", "Warmup incomplete: %v", err)
	}

	if err := a.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start definitions watcher: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	a.httpServer = &http.Server{
		Addr:    addr,
		Handler: a.host.Handler(fmt.Sprintf("http://%s", addr)),
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("App", "Listening on %s", addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logging.Info("App", "Shutting down")
		a.shutdown()
		return nil
	case err := <-errCh:
		logging.Error("App", err, "HTTP listener failed")
		a.shutdown()
		return err
	}
}

func (a *Application) shutdown() {
	a.watcher.Stop()

	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("App", "HTTP shutdown did not drain cleanly: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.metaPool.CleanupAll()
		a.mcpPool.CleanupAll()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("App", "All pooled connections closed")
	case <-time.After(poolShutdownTimeout):
		logging.Warn("App", "Pool teardown exceeded %s, exiting anyway", poolShutdownTimeout)
	}
}
