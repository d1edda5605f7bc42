package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/civic-ticket-service/internal/api/http"
	"github.com/spec-kit/civic-ticket-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-ticket-service/internal/config"
	"github.com/spec-kit/civic-ticket-service/internal/events"
	"github.com/spec-kit/civic-ticket-service/internal/evidence"
	"github.com/spec-kit/civic-ticket-service/internal/genai"
	"github.com/spec-kit/civic-ticket-service/internal/geo"
	"github.com/spec-kit/civic-ticket-service/internal/observability"
	"github.com/spec-kit/civic-ticket-service/internal/persistence"
	"github.com/spec-kit/civic-ticket-service/internal/pipeline"
	"github.com/spec-kit/civic-ticket-service/internal/repository"
	"github.com/spec-kit/civic-ticket-service/internal/service"
	"github.com/spec-kit/civic-ticket-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	store, err := newTicketStore(cfg.Store, pg, redis, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.Error(err))
	}
	logger.Info("ticket store ready", zap.String("driver", cfg.Store.Driver), zap.String("slot", cfg.Store.Slot))

	authorities, err := newAuthorityRegistry(cfg.Lifecycle)
	if err != nil {
		logger.Fatal("failed to load authorities", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher(logger)

	tickets := service.NewTicketService(service.TicketDependencies{
		Store:       store,
		Authorities: authorities,
		Escalator:   service.NewEscalator(cfg.Lifecycle.EscalationThreshold()),
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	analyzer, err := newAnalyzer(cfg.GenAI, logger)
	if err != nil {
		logger.Fatal("failed to configure analyzer", zap.Error(err))
	}

	geocoder := geo.NewNominatim(geo.NominatimOptions{
		BaseURL:   cfg.Geo.GeocoderBaseURL,
		UserAgent: cfg.Geo.GeocoderUserAgent,
		Cache:     geo.NewRedisCache(redis.Client, "geocode:"),
		CacheTTL:  cfg.Geo.CacheTTL(),
	}, logger)
	router := geo.NewOSRM(cfg.Geo.RouterBaseURL, cfg.Geo.GeocoderUserAgent, nil)
	hazards := geo.NewHazardFinder(geocoder, router, tickets, cfg.Geo.HazardRadiusKm)

	windows, err := pipeline.NewResolutionTable(cfg.Lifecycle.ResolutionWindows)
	if err != nil {
		logger.Fatal("invalid resolution windows", zap.Error(err))
	}
	analysis := pipeline.New(pipeline.Dependencies{
		Analyzer:    analyzer,
		Authorities: authorities,
		Geocoder:    geocoder,
		Windows:     windows,
		Metrics:     metrics,
		Logger:      logger,
	})

	evidenceStore, err := evidence.NewStore(cfg.Evidence.Dir, cfg.Evidence.MaxBytes)
	if err != nil {
		logger.Fatal("failed to open evidence store", zap.Error(err))
	}

	notifications := service.NewNotificationService(dispatcher, authorities, logger, cfg.Notification)
	commissioner := worker.NewCommissionerWorker(tickets, analysis, logger, metrics, worker.CommissionerOptions{
		QueueSize: 64,
		Timeout:   30 * time.Second,
	})
	waitWorkers := worker.Start(ctx, dispatcher, notifications, commissioner)

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: int(cfg.Evidence.MaxBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:      handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, pg, redis),
		Tickets:     handlers.NewTicketsHandler(tickets, commissioner),
		Reports:     handlers.NewReportsHandler(analysis, evidenceStore),
		Routes:      handlers.NewRoutesHandler(hazards),
		Evidence:    handlers.NewEvidenceHandler(evidenceStore),
		Authorities: handlers.NewAuthoritiesHandler(authorities),
		Metrics:     metrics.Registry(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
	cancel()
	waitWorkers()
}

func newTicketStore(cfg config.StoreConfig, pg *persistence.Postgres, redis *persistence.Redis, logger *zap.Logger) (repository.TicketStore, error) {
	switch cfg.Driver {
	case "memory":
		return repository.NewMemoryTicketStore(), nil
	case "file":
		return repository.NewFileTicketStore(cfg.FilePath, logger)
	case "redis":
		if !redis.Enabled() {
			return nil, fmt.Errorf("store driver redis requires REDIS_ADDR")
		}
		return repository.NewRedisTicketStore(redis.Client, cfg.Slot, logger), nil
	case "postgres":
		if !pg.Enabled() {
			return nil, fmt.Errorf("store driver postgres requires POSTGRES_DSN")
		}
		return repository.NewPostgresTicketStore(pg.PoolHandle(), cfg.Slot, logger), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func newAuthorityRegistry(cfg config.LifecycleConfig) (repository.AuthorityRegistry, error) {
	list := repository.DefaultAuthorities()
	if cfg.AuthoritiesFile != "" {
		loaded, err := repository.LoadAuthoritiesFile(cfg.AuthoritiesFile)
		if err != nil {
			return nil, err
		}
		list = loaded
	}
	return repository.NewAuthorityRegistry(list, cfg.DefaultAuthorityID)
}

func newAnalyzer(cfg config.GenAIConfig, logger *zap.Logger) (genai.Analyzer, error) {
	switch cfg.Provider {
	case "stub", "":
		logger.Info("using stub analyzer")
		return genai.NewStubAnalyzer(), nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("GENAI_PROVIDER=anthropic requires ANTHROPIC_API_KEY")
		}
		return genai.NewAnthropicAnalyzer(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger), nil
	}
	return nil, fmt.Errorf("unknown genai provider %q", cfg.Provider)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
