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

	"github.com/rs/zerolog/log"

	"github.com/LordWorm1996/DormNet/internal/adapters/events"
	"github.com/LordWorm1996/DormNet/internal/api/handlers"
	"github.com/LordWorm1996/DormNet/internal/api/middleware"
	"github.com/LordWorm1996/DormNet/internal/domain/providers"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/rabbitmq"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/clients/redis"
	"github.com/LordWorm1996/DormNet/internal/infrastructure/observability"
	"github.com/LordWorm1996/DormNet/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-sse", cfg.Environment)
	log.Info().Msg("Starting SSE Server...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A standalone stream server needs a shared transport
	var eventBus providers.EventBus
	switch cfg.Events.Driver {
	case "amqp":
		client := rabbitmq.NewClient(&cfg.RabbitMQ)
		if err := client.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		eventBus = events.NewAMQPEventBus(client)
	case "redis":
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Redis client")
		}
		defer redisClient.Close()
		eventBus = events.NewRedisEventBus(redisClient)
	default:
		log.Fatal().Str("driver", cfg.Events.Driver).Msg("The SSE server needs EVENT_BUS_DRIVER=redis or amqp")
	}
	log.Info().Str("driver", cfg.Events.Driver).Msg("Event bus initialized successfully")

	sseHandler := handlers.NewSSEHandler(eventBus)
	wsHandler := handlers.NewWebSocketHandler(eventBus, cfg.Server.AllowedOrigins)

	// Set up router
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Streaming endpoints
	mux.HandleFunc("GET /api/stream/appliances/{id}", sseHandler.StreamApplianceUpdates)
	mux.HandleFunc("GET /api/stream/reservations", sseHandler.StreamReservationUpdates)
	mux.HandleFunc("GET /api/ws/reservations", wsHandler.StreamReservations)

	// SSE stats endpoint
	mux.HandleFunc("GET /api/stream/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"connected_clients": %d}`, sseHandler.GetClientCount())
	})

	// Apply middleware
	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORSMiddleware(cfg.Server.AllowedOrigins)(handler)

	// Create HTTP server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE streaming
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Msg("SSE Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("SSE Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("SSE Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	if err := eventBus.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing event bus")
	}

	log.Info().Msg("SSE Server stopped")
}
