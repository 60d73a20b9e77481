package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/adapters/database"
	"github.com/LordWorm1996/DormNet/internal/adapters/search"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/postgres"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/typesense"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	"github.com/LordWorm1996/DormNet/pkg/config"
)

func main() {
	var reset bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete existing Typesense collection before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-indexer", cfg.Environment)

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgClient := postgres.NewClient(&cfg.Database, cfg.Reservation.StoreTimeout)
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Typesense")
	}

	appliances := services.NewApplianceService(
		database.NewApplianceAdapter(pgClient),
		database.NewReservationAdapter(pgClient),
		search.NewTypesenseAdapter(tsClient),
	)

	for {
		if err := indexOnce(ctx, tsClient, appliances, reset); err != nil {
			log.Error().Err(err).Msg("Reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("next_run_in", interval).Msg("Reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, tsClient *typesense.Client, appliances *services.ApplianceService, reset bool) error {
	if reset || os.Getenv("RESET_TYPESENSE") == "true" {
		log.Info().Str("collection", typesense.AppliancesCollection).Msg("Deleting collection before reindex")
		if _, err := tsClient.Client().Collection(typesense.AppliancesCollection).Delete(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to delete collection")
		}
	}

	if err := tsClient.InitSchema(ctx); err != nil {
		return err
	}

	start := time.Now()
	indexed, err := appliances.Reindex(ctx)
	if err != nil {
		return err
	}

	log.Info().Int("appliances", indexed).Dur("took", time.Since(start)).Msg("Indexed appliances")
	return nil
}
