package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/adapters/database"
	"github.com/LordWorm1996/DormNet/internal/adapters/events"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/postgres"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/rabbitmq"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/redis"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	"github.com/LordWorm1996/DormNet/pkg/config"
)

// Moves reservations whose end time has passed from active to completed.
func main() {
	var interval time.Duration
	flag.DurationVar(&interval, "interval", 0, "repeat every interval (e.g. 5m); run once when zero")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-complete", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgClient := postgres.NewClient(&cfg.Database, cfg.Reservation.StoreTimeout)
	defer pgClient.Close()

	eventBus := newEventBus(ctx, cfg)
	defer eventBus.Close()

	svc := services.NewReservationService(
		database.NewReservationAdapter(pgClient),
		database.NewApplianceAdapter(pgClient),
		database.NewUserAdapter(pgClient),
		eventBus,
		cfg.Reservation.MaxDuration,
	)

	for {
		start := time.Now()
		completed, err := svc.CompleteExpired(ctx, start.UTC())
		if err != nil {
			log.Error().Err(err).Msg("Completion run failed")
		} else {
			log.Info().Int("completed", len(completed)).Dur("took", time.Since(start)).Msg("Completion run finished")
		}

		if interval <= 0 {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Completed events reach the API's cache invalidation only over a shared transport
func newEventBus(ctx context.Context, cfg *config.Config) providers.EventBus {
	switch cfg.Events.Driver {
	case "redis":
		client, err := redis.NewClient(ctx, &cfg.Redis)
		if err == nil {
			return events.NewRedisEventBus(client)
		}
		log.Warn().Err(err).Msg("Redis unavailable; completion events will not be published")
	case "amqp":
		client := rabbitmq.NewClient(&cfg.RabbitMQ)
		err := client.Connect()
		if err == nil {
			return events.NewAMQPEventBus(client)
		}
		log.Warn().Err(err).Msg("RabbitMQ unavailable; completion events will not be published")
	}
	return events.NewMemoryEventBus()
}
