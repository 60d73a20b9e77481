package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/adapters/cache"
	"github.com/LordWorm1996/DormNet/internal/adapters/database"
	"github.com/LordWorm1996/DormNet/internal/adapters/events"
	"github.com/LordWorm1996/DormNet/internal/adapters/memory"
	"github.com/LordWorm1996/DormNet/internal/adapters/search"
	"github.com/LordWorm1996/DormNet/internal/adapters/session"
	"github.com/LordWorm1996/DormNet/internal/api/handlers"
	"github.com/LordWorm1996/DormNet/internal/api/middleware"
	"github.com/LordWorm1996/DormNet/internal/api/routes"
	"github.com/LordWorm1996/DormNet/internal/application/services"
	"github.com/LordWorm1996/DormNet/internal/domain/entities"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/domain/repositories"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/postgres"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/rabbitmq"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/redis"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/typesense"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	"github.com/LordWorm1996/DormNet/migrations"
	"github.com/LordWorm1996/DormNet/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Environment)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			observability.EnableLogExport()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize the reservation store
	var (
		reservationRepo repositories.ReservationRepository
		applianceRepo   repositories.ApplianceRepository
		userRepo        repositories.UserRepository
	)
	switch cfg.Store.Driver {
	case "memory":
		store := memory.NewStore()
		seedDemoDirectory(store)
		reservationRepo, applianceRepo, userRepo = store.Reservations(), store.Appliances(), store.Users()
		log.Warn().Msg("Using in-memory store; reservations are lost on restart")
	default:
		pgClient := postgres.NewClient(&cfg.Database, cfg.Reservation.StoreTimeout)
		pgClient.SetMetrics(metrics)
		defer pgClient.Close()

		// The connection is opened lazily; a database that is down at boot only fails requests
		if cfg.Store.AutoMigrate {
			db, err := pgClient.Acquire(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL for migrations")
			}
			if err := migrations.Apply(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply migrations")
			}
			log.Info().Msg("Database migrations applied")
		}

		reservationRepo = database.NewReservationAdapter(pgClient)
		applianceRepo = database.NewApplianceAdapter(pgClient)
		userRepo = database.NewUserAdapter(pgClient)
	}

	// Redis backs the cache and the default event bus
	var redisClient *redis.Client
	if cfg.Cache.Driver == "redis" || cfg.Events.Driver == "redis" {
		redisClient, err = redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Redis client")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var cacheProvider providers.CacheProvider
	switch cfg.Cache.Driver {
	case "redis":
		if redisClient != nil {
			cacheProvider = cache.NewRedisAdapter(redisClient)
		}
	case "memory":
		lru, err := cache.NewLRUAdapter(cfg.Cache.Size)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create in-process cache")
		}
		cacheProvider = lru
	}
	if cacheProvider == nil {
		log.Warn().Msg("Running without cache")
	} else {
		applianceRepo = database.NewCachedApplianceAdapter(applianceRepo, cacheProvider)
		log.Info().Str("driver", cfg.Cache.Driver).Msg("Appliance directory wrapped with caching layer")
	}

	// Initialize event bus for real-time updates
	eventBus := newEventBus(cfg, redisClient)
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// Initialize search
	var searchRepo repositories.ApplianceSearchRepository
	if cfg.Typesense.Enabled {
		tsClient, err := typesense.NewClient(ctx, &cfg.Typesense)
		if err != nil {
			log.Warn().Err(err).Msg("Typesense unavailable; appliance search falls back to directory scan")
		} else {
			if err := tsClient.InitSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to init Typesense schema")
			}
			searchRepo = search.NewTypesenseAdapter(tsClient)
		}
	}

	// Initialize services
	reservationService := services.NewReservationService(reservationRepo, applianceRepo, userRepo, eventBus, cfg.Reservation.MaxDuration)
	reservationService.SetMetrics(metrics)
	calendarService := services.NewCalendarService(reservationService)
	applianceService := services.NewApplianceService(applianceRepo, reservationRepo, searchRepo)
	statsService := services.NewStatsService(userRepo, applianceRepo, reservationRepo)

	var cacheInvalidationService *services.CacheInvalidationService
	var cacheMiddleware *middleware.CacheMiddleware
	if cacheProvider != nil {
		cacheInvalidationService = services.NewCacheInvalidationService(cacheProvider, eventBus)
		if err := cacheInvalidationService.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start cache invalidation service; HTTP cache disabled")
		} else {
			// Cached responses are only safe while invalidation runs
			cacheMiddleware = middleware.NewCacheMiddleware(cacheProvider, metrics)
		}

		go func() {
			if err := services.NewCacheWarmingService(applianceRepo).WarmCache(ctx); err != nil {
				log.Warn().Err(err).Msg("Cache warming failed")
			}
		}()
	}

	sessions := session.NewCookieProvider(&cfg.Session, cfg.Environment == "production")
	if cfg.Session.Secret == "" {
		log.Warn().Msg("SESSION_SECRET is empty; session cookies cannot be trusted")
	}

	// Set up router
	router := routes.NewRouter(
		handlers.NewReservationHandler(reservationService),
		handlers.NewCalendarHandler(calendarService),
		handlers.NewApplianceHandler(applianceService),
		handlers.NewAccountHandler(statsService),
		routes.Options{
			SSEHandler:       handlers.NewSSEHandler(eventBus),
			WebSocketHandler: handlers.NewWebSocketHandler(eventBus, cfg.Server.AllowedOrigins),
			Sessions:         sessions,
			Appliances:       applianceRepo,
			Users:            userRepo,
			CacheMiddleware:  cacheMiddleware,
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			Metrics:          metrics,
		},
	)

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router.SetupRoutes(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE and websocket streams stay open
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Str("store", cfg.Store.Driver).Str("events", cfg.Events.Driver).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if cacheInvalidationService != nil {
		cacheInvalidationService.Stop()
	}

	log.Info().Msg("Server stopped")
}

// newEventBus selects the transport named by EVENT_BUS_DRIVER, falling back to in-process delivery
func newEventBus(cfg *config.Config, redisClient *redis.Client) providers.EventBus {
	switch cfg.Events.Driver {
	case "redis":
		if redisClient != nil {
			log.Info().Msg("Event bus: Redis pub/sub")
			return events.NewRedisEventBus(redisClient)
		}
		log.Warn().Msg("Redis unavailable; events stay in process")
	case "amqp":
		client := rabbitmq.NewClient(&cfg.RabbitMQ)
		if err := client.Connect(); err != nil {
			log.Warn().Err(err).Msg("RabbitMQ unavailable; events stay in process")
			break
		}
		log.Info().Str("exchange", client.Exchange()).Msg("Event bus: RabbitMQ")
		return events.NewAMQPEventBus(client)
	}
	return events.NewMemoryEventBus()
}

// seedDemoDirectory gives the in-memory store something to book
func seedDemoDirectory(store *memory.Store) {
	washMinutes, dryMinutes := 45, 60
	now := time.Now().UTC()

	store.PutAppliance(&entities.Appliance{ID: "washer-1", Name: "Washer 1", Type: "washer", DefaultUseTime: &washMinutes, CreatedAt: now, UpdatedAt: now})
	store.PutAppliance(&entities.Appliance{ID: "washer-2", Name: "Washer 2", Type: "washer", DefaultUseTime: &washMinutes, CreatedAt: now, UpdatedAt: now})
	store.PutAppliance(&entities.Appliance{ID: "dryer-1", Name: "Dryer 1", Type: "dryer", DefaultUseTime: &dryMinutes, CreatedAt: now, UpdatedAt: now})
	store.PutAppliance(&entities.Appliance{ID: "iron-1", Name: "Iron", Type: "iron", CreatedAt: now, UpdatedAt: now})

	store.PutUser(&entities.User{ID: "demo-user", Username: "demo", Name: "Demo", Surname: "Resident", Email: "demo@dormnet.local", Role: entities.RoleUser})
	store.PutUser(&entities.User{ID: "demo-admin", Username: "warden", Name: "Dorm", Surname: "Warden", Email: "warden@dormnet.local", Role: entities.RoleAdmin})
}
