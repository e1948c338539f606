package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/engage/internal/activitytype"
	"example.com/engage/internal/activitytype/builtin"
	"example.com/engage/internal/api"
	"example.com/engage/internal/auth"
	"example.com/engage/internal/config"
	"example.com/engage/internal/domain"
	"example.com/engage/internal/outbox"
	"example.com/engage/internal/persistence/memory"
	"example.com/engage/internal/persistence/postgres"
	"example.com/engage/internal/sweeper"
	httptransport "example.com/engage/internal/transport/http"
)

func main() {
	cfg := config.Load()

	registry := activitytype.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		log.Fatalf("register builtin activity types: %v", err)
	}
	// Startup gate: a broken type definition must never reach traffic.
	if err := registry.ValidateAll(); err != nil {
		log.Fatalf("activity type validation: %v", err)
	}
	log.Printf("registered %d activity types", registry.Len())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store domain.Store
	var dispatcher *outbox.Dispatcher
	var producer *outbox.KafkaProducer

	switch cfg.StoreDriver {
	case "memory":
		store = memory.NewStore()
		log.Printf("using in-memory store")
	default:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrate schema: %v", err)
		}
		store = postgres.NewRepository(pool)

		producer = outbox.NewKafkaProducer(cfg.KafkaBrokers)
		dispatcher = outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	}

	service := domain.NewService(registry, store)

	sweep := sweeper.New(service, cfg.SweepInterval)
	go sweep.Start(ctx)

	handler := api.NewHandler(service, registry)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
	}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || strings.HasPrefix(r.URL.Path, "/metrics")
	})

	server := httptransport.NewServer(httptransport.Config{
		Address: cfg.HTTPAddress,
	}, api.RequestLogger(api.CORS(authMiddleware.Wrap(mux))))

	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	sweep.Wait()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Printf("close kafka producer: %v", err)
		}
	}

	log.Printf("shutdown complete")
	os.Exit(0)
}
