package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cdx-ehr/billreview/internal/adapters/database"
	"github.com/cdx-ehr/billreview/internal/adapters/events"
	"github.com/cdx-ehr/billreview/internal/application/services"
	"github.com/cdx-ehr/billreview/internal/domain/providers"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/postgres"
	"github.com/cdx-ehr/billreview/internal/infrastructure/clients/redis"
	"github.com/cdx-ehr/billreview/internal/infrastructure/observability"
	"github.com/cdx-ehr/billreview/pkg/config"
)

func main() {
	var billID string
	var limit int

	flag.StringVar(&billID, "bill", "", "Single bill ID to map")
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
	observability.InitLogger(cfg.OTEL.ServiceName+"-mapbills", env)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	var eventBus providers.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis client, continuing without events")
		} else {
			defer redisClient.Close()
			eventBus = events.NewRedisEventBus(redisClient)
			defer eventBus.Close()
		}
	}

	billRepo := database.NewBillAdapter(pgClient)
	orderRepo := database.NewOrderAdapter(pgClient)

	svc := services.NewMappingService(billRepo, orderRepo, eventBus, cfg.Engine)

	start := time.Now()

	if billID != "" {
		result, err := svc.MapBill(ctx, billID)
		if err != nil {
			log.Fatal().Err(err).Str("bill_id", billID).Msg("Failed to map bill")
		}
		log.Info().
			Str("bill_id", result.BillID).
			Str("status", string(result.Status)).
			Str("order_id", result.OrderID).
			Str("message", result.Message).
			Dur("elapsed", time.Since(start)).
			Msg("Bill mapped")
		return
	}

	result, err := svc.MapBatch(ctx, limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to map batch")
	}

	log.Info().
		Int("total", result.Total).
		Int("mapped", result.Mapped).
		Int("duplicate", result.Duplicate).
		Int("unmapped", result.Unmapped).
		Int("errors", result.Errors).
		Dur("elapsed", time.Since(start)).
		Msg("Mapping run complete")
}
