package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cdx-ehr/billreview/internal/adapters/cache"
	"github.com/cdx-ehr/billreview/internal/adapters/database"
	"github.com/cdx-ehr/billreview/internal/adapters/events"
	"github.com/cdx-ehr/billreview/internal/adapters/search"
	"github.com/cdx-ehr/billreview/internal/application/services"
	"github.com/cdx-ehr/billreview/internal/domain/entities"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/domain/repositories"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/postgres"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/redis"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/typesense"
	"github.com/cdx-ehr/billreview/internal/infrastructure/observability"
	"github.com/cdx-ehr/billreview/pkg/config"
)

func main() {
	var billID string
	var limit int

	flag.StringVar(&billID, "bill", "", "Single bill ID to adjudicate")
	flag.IntVar(&limit, "limit", 0, "Max bills per batch run (0 uses the configured default)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-adjudicate", env)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	// Redis is optional. Without it the engine runs uncached and
	// without lifecycle events.
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis client, continuing without cache and events")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
			defer eventBus.Close()
		}
	}

	// Typesense is optional. Without it flagged bills are not indexed
	// for review search.
	var reviewIndex providers.ReviewIndex
	if cfg.Typesense.Enabled {
		typesenseClient, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Typesense client, continuing without review index")
		} else {
			adapter := search.NewTypesenseAdapter(typesenseClient)
			if err := typesenseClient.InitSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to init Typesense schema")
			}
			reviewIndex = adapter
		}
	}

	billRepo := database.NewBillAdapter(pgClient)
	orderRepo := database.NewOrderAdapter(pgClient)
	providerRepo := database.NewProviderAdapter(pgClient)

	var referenceRepo repositories.ReferenceRepository = database.NewReferenceAdapter(pgClient)
	if cacheProvider != nil {
		referenceRepo = database.NewCachedReferenceAdapter(referenceRepo, cacheProvider, metrics)
	}

	ancillaryCodes := entities.LoadAncillaryCodeSet(cfg.Engine.AncillaryCodesPath)

	svc := services.NewAdjudicationService(services.AdjudicationDeps{
		BillRepo:       billRepo,
		OrderRepo:      orderRepo,
		ProviderRepo:   providerRepo,
		Validation:     services.NewValidationService(ancillaryCodes),
		Comparison:     services.NewComparisonService(referenceRepo, ancillaryCodes),
		Rates:          services.NewRateService(referenceRepo, ancillaryCodes),
		AncillaryCodes: ancillaryCodes,
		EventBus:       eventBus,
		ReviewIndex:    reviewIndex,
		Metrics:        metrics,
		Config:         cfg.Engine,
	})

	start := time.Now()

	if billID != "" {
		result, err := svc.ProcessBill(ctx, billID)
		if err != nil {
			log.Fatal().Err(err).Str("bill_id", billID).Msg("Failed to process bill")
		}
		log.Info().
			Str("bill_id", result.BillID).
			Str("status", string(result.Status)).
			Str("message", result.Message).
			Dur("elapsed", time.Since(start)).
			Msg("Bill processed")
		return
	}

	result, err := svc.ProcessBatch(ctx, limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to process batch")
	}

	log.Info().
		Int("total", result.Total).
		Int("success", result.Success).
		Int("flagged", result.Flagged).
		Int("arthrogram", result.Arthrogram).
		Int("error", result.Error).
		Dur("elapsed", time.Since(start)).
		Msg("Adjudication run complete")
}
