package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

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
	var status string
	var action string
	var errorContains string
	var limit int

	flag.StringVar(&billID, "bill", "", "Single bill ID to reset")
	flag.StringVar(&status, "status", "", "Reset bills in this status (e.g. FLAGGED, ERROR)")
	flag.StringVar(&action, "action", "", "Restrict the status filter to this action")
	flag.StringVar(&errorContains, "error-contains", "", "Restrict the status filter to errors containing this text")
	flag.IntVar(&limit, "limit", 0, "Max bills to reset (0 for no limit)")
	flag.Parse()

	if billID == "" && status == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-resetbill", env)

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

	var reviewIndex providers.ReviewIndex
	if cfg.Typesense.Enabled {
		typesenseClient, err := typesense.NewClient(&cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Typesense client, continuing without review index")
		} else {
			reviewIndex = search.NewTypesenseAdapter(typesenseClient)
		}
	}

	svc := services.NewResetService(database.NewBillAdapter(pgClient), eventBus, reviewIndex)

	if billID != "" {
		if err := svc.ResetBill(ctx, billID); err != nil {
			log.Fatal().Err(err).Str("bill_id", billID).Msg("Failed to reset bill")
		}
		log.Info().Str("bill_id", billID).Msg("Bill reset for reprocessing")
		return
	}

	count, err := svc.ResetMatching(ctx, repositories.ResetFilter{
		Status:        entities.BillStatus(status),
		Action:        entities.BillAction(action),
		ErrorContains: errorContains,
		Limit:         limit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reset bills")
	}

	log.Info().Int("count", count).Str("status", status).Msg("Bills reset for reprocessing")
}
