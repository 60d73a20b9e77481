package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/adapters/cache"
	"github.com/LordWorm1996/DormNet/internal/adapters/database"
	"github.com/LordWorm1996/DormNet/internal/adapters/search"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/postgres"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/redis"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/typesense"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	"github.com/LordWorm1996/DormNet/migrations"
	"github.com/LordWorm1996/DormNet/pkg/config"
)

var dialect = goqu.Dialect("postgres")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("dormnet-seed", cfg.Environment)

	ctx := context.Background()

	pgClient := postgres.NewClient(&cfg.Database, 30*time.Second)
	defer pgClient.Close()

	db, err := pgClient.Acquire(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	if err := migrations.Apply(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := db.ExecContext(ctx, `TRUNCATE TABLE reservations, appliances, users CASCADE`); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	now := time.Now().UTC()

	// 1. Seed residents
	users := []goqu.Record{
		{"id": "u-admin", "username": "warden", "name": "Dorm", "surname": "Warden", "email": "warden@dormnet.local", "role": "admin"},
		{"id": "u-ana", "username": "ana", "name": "Ana", "surname": "Horvat", "email": "ana@dormnet.local", "role": "user"},
		{"id": "u-ben", "username": "ben", "name": "Ben", "surname": "Kovac", "email": "ben@dormnet.local", "role": "user"},
		{"id": "u-cleo", "username": "cleo", "name": "Cleo", "surname": "Marin", "email": "cleo@dormnet.local", "role": "user"},
	}
	for _, u := range users {
		insert(ctx, db, "users", u)
	}

	// 2. Seed appliances
	appliances := []goqu.Record{
		{"id": "washer-1", "name": "Washer 1 (Ground floor)", "type": "washer", "default_use_time": 45},
		{"id": "washer-2", "name": "Washer 2 (Ground floor)", "type": "washer", "default_use_time": 45},
		{"id": "washer-3", "name": "Washer 3 (Basement)", "type": "washer", "default_use_time": 60},
		{"id": "dryer-1", "name": "Dryer 1 (Ground floor)", "type": "dryer", "default_use_time": 60},
		{"id": "dryer-2", "name": "Dryer 2 (Basement)", "type": "dryer", "default_use_time": 60},
		{"id": "iron-1", "name": "Ironing station", "type": "iron", "default_use_time": nil},
	}
	for _, a := range appliances {
		a["created_at"], a["updated_at"] = now, now
		insert(ctx, db, "appliances", a)
	}

	// Directory changes bypass the API, so drop cached copies
	if redisClient, err := redis.NewClient(ctx, &cfg.Redis); err == nil {
		provider := cache.NewRedisAdapter(redisClient)
		for _, pattern := range []string{database.ApplianceCachePattern, "http:cache:*appliances*"} {
			if err := provider.DeletePattern(ctx, pattern); err != nil {
				log.Warn().Err(err).Str("pattern", pattern).Msg("Failed to invalidate cache")
			}
		}
		_ = redisClient.Close()
	}

	if cfg.Typesense.Enabled {
		tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping search indexing")
		} else if err := tsClient.InitSchema(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to init Typesense schema")
		} else {
			svc := services.NewApplianceService(database.NewApplianceAdapter(pgClient), database.NewReservationAdapter(pgClient), search.NewTypesenseAdapter(tsClient))
			indexed, err := svc.Reindex(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to index appliances")
			}
			log.Info().Int("appliances", indexed).Msg("Indexed appliances")
		}
	}

	log.Info().Int("users", len(users)).Int("appliances", len(appliances)).Msg("Seeding completed successfully")
}

func insert(ctx context.Context, db *sql.DB, table string, row goqu.Record) {
	query, args, err := dialect.Insert(table).Rows(row).OnConflict(goqu.DoNothing()).Prepared(true).ToSQL()
	if err != nil {
		log.Fatal().Err(err).Str("table", table).Msg("Failed to build insert")
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		log.Error().Err(err).Str("table", table).Interface("id", row["id"]).Msg("Failed to seed row")
	}
}
