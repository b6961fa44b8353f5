// Package main wires together the jobscout service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/api"
	"github.com/jobscout/jobscout/internal/clock/system"
	"github.com/jobscout/jobscout/internal/config"
	"github.com/jobscout/jobscout/internal/enrich"
	"github.com/jobscout/jobscout/internal/fetch"
	"github.com/jobscout/jobscout/internal/fetch/headless"
	"github.com/jobscout/jobscout/internal/id/uuid"
	"github.com/jobscout/jobscout/internal/logging"
	"github.com/jobscout/jobscout/internal/notify"
	"github.com/jobscout/jobscout/internal/persist"
	"github.com/jobscout/jobscout/internal/run"
	"github.com/jobscout/jobscout/internal/scout"
	"github.com/jobscout/jobscout/internal/snapshot"
	"github.com/jobscout/jobscout/internal/source"
	"github.com/jobscout/jobscout/internal/source/boardapi"
	"github.com/jobscout/jobscout/internal/source/htmlboard"
	memorystore "github.com/jobscout/jobscout/internal/store/memory"
	postgresstore "github.com/jobscout/jobscout/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("service exited", zap.Error(err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var (
		jobs scout.JobStore
		runs scout.RunStore
	)
	switch cfg.DB.Provider {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, postgresstore.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		jobStore, err := postgresstore.NewJobStore(pool)
		if err != nil {
			return fmt.Errorf("create job store: %w", err)
		}
		runStore, err := postgresstore.NewRunStore(pool)
		if err != nil {
			return fmt.Errorf("create run store: %w", err)
		}
		jobs, runs = jobStore, runStore
	default:
		jobs = memorystore.NewJobStore()
		runs = memorystore.NewRunStore()
	}

	var publisher scout.Publisher
	if cfg.PubSub.Enabled {
		ps, err := notify.NewPubSubPublisher(ctx, notify.PubSubConfig{
			ProjectID:   cfg.PubSub.ProjectID,
			TopicPrefix: cfg.PubSub.TopicPrefix,
		})
		if err != nil {
			return fmt.Errorf("connect pubsub: %w", err)
		}
		defer ps.Close() //nolint:errcheck // best-effort flush
		publisher = ps
	} else {
		publisher = notify.NewMemoryPublisher()
	}

	var snapshots scout.BlobStore
	if cfg.Storage.Enabled {
		gcs, err := snapshot.NewGCSStore(ctx, cfg.Storage.Bucket)
		if err != nil {
			return fmt.Errorf("connect storage: %w", err)
		}
		defer gcs.Close() //nolint:errcheck // best-effort close
		snapshots = gcs
	} else {
		snapshots = snapshot.NewMemoryStore()
	}

	var (
		sizer    scout.CompanySizeLookup = enrich.NoopCompanySizer{}
		contacts scout.ContactFinder     = enrich.NoopContactFinder{}
	)
	if cfg.Enrich.Enabled {
		enrichCfg := enrich.Config{
			BaseURL: cfg.Enrich.BaseURL,
			APIKey:  cfg.Enrich.APIKey,
			Timeout: cfg.Enrich.Timeout,
		}
		httpSizer, err := enrich.NewHTTPCompanySizer(enrichCfg, logger.Named("enrich"))
		if err != nil {
			return fmt.Errorf("create company sizer: %w", err)
		}
		httpContacts, err := enrich.NewHTTPContactFinder(enrichCfg, logger.Named("enrich"))
		if err != nil {
			return fmt.Errorf("create contact finder: %w", err)
		}
		sizer, contacts = httpSizer, httpContacts
	}

	var browser *headless.Browser
	if cfg.Headless.Enabled {
		b, err := headless.New(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
			ScrollCount:       cfg.Headless.ScrollCount,
			ScrollDelay:       cfg.Headless.ScrollDelay,
			LoadMoreSelector:  cfg.Headless.LoadMoreSelector,
			DomainQPS:         cfg.Headless.DomainQPS,
		})
		if err != nil {
			logger.Warn("headless browser init failed", zap.Error(err))
		} else {
			browser = b
			defer browser.Close()
		}
	}

	fetchCfg := fetch.Config{
		MaxAttempts:      cfg.Scrape.MaxAttempts,
		BaseDelay:        cfg.Scrape.BaseDelay,
		MaxDelay:         cfg.Scrape.MaxDelay,
		RequestTimeout:   cfg.Scrape.RequestTimeout,
		BrowserThreshold: cfg.Scrape.BrowserThreshold,
		SnapshotPrefix:   cfg.Scrape.SnapshotPrefix,
	}
	fetchLogger := logger.Named("fetch")
	// Identity state is per run: a proxy burned during one run is retried
	// fresh by the next.
	fetcherFactory := func() scout.Fetcher {
		pool := fetch.NewIdentityPool(cfg.Scrape.UserAgents, cfg.Scrape.Proxies)
		opts := []fetch.Option{fetch.WithSnapshots(snapshots)}
		if browser != nil {
			opts = append(opts, fetch.WithBrowser(browser))
		}
		return fetch.NewClient(fetchCfg, pool, fetchLogger, opts...)
	}

	registry := source.NewRegistry()
	if cfg.Sources.BoardAPI.Enabled {
		if err := registry.Register(boardapi.New(boardapi.Config{
			BaseURL: cfg.Sources.BoardAPI.BaseURL,
			AppID:   cfg.Sources.BoardAPI.AppID,
			AppKey:  cfg.Sources.BoardAPI.AppKey,
			Country: cfg.Sources.BoardAPI.Country,
			Pages:   cfg.Sources.BoardAPI.Pages,
			PerPage: cfg.Sources.BoardAPI.PerPage,
		})); err != nil {
			return fmt.Errorf("register boardapi source: %w", err)
		}
	}
	if cfg.Sources.HTMLBoard.Enabled {
		ex, err := htmlboard.New(htmlboard.Config{
			BaseURL: cfg.Sources.HTMLBoard.BaseURL,
			Pages:   cfg.Sources.HTMLBoard.Pages,
		})
		if err != nil {
			return fmt.Errorf("create htmlboard source: %w", err)
		}
		if err := registry.Register(ex); err != nil {
			return fmt.Errorf("register htmlboard source: %w", err)
		}
	}

	clock := system.New()
	idGen := uuid.New()
	persister := persist.New(jobs, clock, idGen, logger.Named("persist"))

	coordinator, err := run.NewCoordinator(
		fetcherFactory,
		registry,
		persister,
		runs,
		sizer,
		contacts,
		publisher,
		clock,
		logger.Named("run"),
		run.Config{
			MaxWorkers:    cfg.Scrape.MaxWorkers,
			SourceTimeout: cfg.Scrape.SourceTimeout,
		},
	)
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	manager, err := run.NewManager(ctx, coordinator, runs, idGen, clock, logger.Named("run"))
	if err != nil {
		return fmt.Errorf("create run manager: %w", err)
	}

	apiServer := api.NewServer(manager, logger.Named("api"))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	manager.Wait()
	return nil
}
