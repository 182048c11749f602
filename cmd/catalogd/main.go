package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"agent_catalog/internal/api"
	"agent_catalog/internal/catalog"
	"agent_catalog/internal/config"
	"agent_catalog/internal/dispatch"
	"agent_catalog/internal/domain"
	"agent_catalog/internal/identity"
	"agent_catalog/internal/llm"
	"agent_catalog/internal/service"
	"agent_catalog/internal/simulation"
	"agent_catalog/internal/store/jsonfile"
	sqlitestore "agent_catalog/internal/store/sqlite"
	"agent_catalog/internal/telemetry"
)

type options struct {
	configPath string
	addr       string
	dataDir    string
	storage    string
	seedPath   string
	reseed     bool
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "path to config.toml (default: ~/.agent_catalog/config.toml)")
	pflag.StringVar(&opts.addr, "addr", "", "http listen address override")
	pflag.StringVar(&opts.dataDir, "data-dir", "", "data directory override")
	pflag.StringVar(&opts.storage, "storage", "", "storage driver override (sqlite or jsonfile)")
	pflag.StringVar(&opts.seedPath, "seed", "", "ecosystem file (json, jsonc or yaml) loaded when the catalog is empty")
	pflag.BoolVar(&opts.reseed, "reseed", false, "replace the stored catalog with the seed file")
	pflag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg = applyFlags(cfg, opts)
	logger := newLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := bootstrap(ctx, cfg, opts.reseed, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.New(rt.service, api.Options{
			Logger:     logger,
			ConfigPath: cfg.Path,
			Config:     cfg.Redacted(),
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	info := rt.service.Provider()
	logger.Info("agent catalog started",
		"addr", cfg.Server.Addr,
		"storage", cfg.Storage.Driver,
		"agents", rt.catalog.Len(),
		"provider", info.Provider,
		"model", info.Model,
		"structured", cfg.Upstream.StructuredReplies(),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func applyFlags(cfg config.Config, opts options) config.Config {
	cfg.Server.Addr = firstNonEmpty(opts.addr, cfg.Server.Addr, "127.0.0.1:3001")
	if dir := strings.TrimSpace(opts.dataDir); dir != "" {
		cfg.Storage.DataDir = dir
		cfg.Storage.DBPath = filepath.Join(dir, "catalog.db")
	}
	cfg.Storage.Driver = firstNonEmpty(opts.storage, cfg.Storage.Driver)
	cfg.Catalog.SeedPath = firstNonEmpty(opts.seedPath, cfg.Catalog.SeedPath)
	return cfg
}

// backend is what both storage drivers provide.
type backend interface {
	catalog.Persister
	telemetry.Persister
	LoadAgents(ctx context.Context) ([]domain.Agent, error)
	LoadLogs(ctx context.Context) ([]domain.LogEntry, error)
	LoadStats(ctx context.Context) (domain.Stats, error)
}

type app struct {
	service *service.Service
	catalog *catalog.Store
	sink    *telemetry.Sink
	closeFn func() error
}

func (a *app) Close() {
	if a.closeFn != nil {
		_ = a.closeFn()
	}
}

// bootstrap opens storage, restores persisted state, seeds the catalog when
// needed and wires the service.
func bootstrap(ctx context.Context, cfg config.Config, reseed bool, logger *slog.Logger) (*app, error) {
	store, closeFn, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt := &app{closeFn: closeFn}
	fail := func(err error) (*app, error) {
		rt.Close()
		return nil, err
	}

	rt.catalog = catalog.NewStore(catalog.Options{Persister: store, Logger: logger})
	agents, err := store.LoadAgents(ctx)
	if err != nil {
		return fail(fmt.Errorf("load agents: %w", err))
	}
	rt.catalog.Restore(agents)

	rt.sink = telemetry.NewSink(store, logger)
	logs, err := store.LoadLogs(ctx)
	if err != nil {
		return fail(fmt.Errorf("load logs: %w", err))
	}
	stats, err := store.LoadStats(ctx)
	if err != nil {
		return fail(fmt.Errorf("load stats: %w", err))
	}
	rt.sink.Restore(stats, logs)

	traces, err := simulation.Builtin()
	if err != nil {
		return fail(fmt.Errorf("load builtin traces: %w", err))
	}
	if seed := strings.TrimSpace(cfg.Catalog.SeedPath); seed != "" {
		eco, err := catalog.ReadEcosystem(seed)
		if err != nil {
			return fail(fmt.Errorf("read seed: %w", err))
		}
		traces.Merge(eco.SimulationTraces)
		if reseed || rt.catalog.Len() == 0 {
			if err := rt.catalog.Load(ctx, eco.Divisions); err != nil {
				return fail(fmt.Errorf("seed catalog: %w", err))
			}
			logger.Info("catalog seeded", "path", seed, "agents", rt.catalog.Len(), "divisions", len(eco.Divisions))
		}
	}

	provider, err := llm.New(llm.Config{
		Provider: cfg.Upstream.Provider,
		Model:    cfg.Upstream.Model,
		BaseURL:  cfg.Upstream.BaseURL,
		APIKey:   cfg.Upstream.APIKey,
		Logger:   logger,
	})
	if err != nil {
		return fail(fmt.Errorf("build upstream provider: %w", err))
	}
	if strings.TrimSpace(cfg.Upstream.APIKey) == "" && provider.Info().Provider != llm.ProviderOllama {
		logger.Warn("upstream API key not configured; chat requests will fail until it is set", "provider", provider.Info().Provider)
	}

	rt.service = service.New(service.Deps{
		Catalog: rt.catalog,
		Dispatcher: dispatch.New(provider, dispatch.Options{
			Structured: cfg.Upstream.StructuredReplies(),
			Logger:     logger,
		}),
		Telemetry: rt.sink,
		Identity:  identity.NewStub(domain.UserRoleAdmin),
		Traces:    traces,
		Logger:    logger,
	})
	return rt, nil
}

func openBackend(ctx context.Context, storage config.StorageConfig) (backend, func() error, error) {
	switch storage.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(storage.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return store, store.Close, nil
	case config.DriverJSONFile, "":
		store, err := jsonfile.Open(storage.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open json store: %w", err)
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", storage.Driver)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(firstNonEmpty(cfg.Level, "info"))); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
