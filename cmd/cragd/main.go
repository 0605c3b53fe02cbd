// Command cragd runs CRAG's gateway, rotation state, and ops HTTP surface
// as a single long-lived process.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-shell/crag/bridgewatch"
	"github.com/nexus-shell/crag/crag"
	"github.com/nexus-shell/crag/gateway"
	"github.com/nexus-shell/crag/internal/config"
	"github.com/nexus-shell/crag/internal/logging"
	"github.com/nexus-shell/crag/internal/metrics"
)

func main() {
	logger := logging.NewFromEnv("cragd")
	metrics.Init("cragd")

	var redisClient *redis.Client
	if addr := config.GetEnv("CRAG_REDIS_ADDR", ""); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}

	var exportDB *sql.DB
	if dsn := config.GetEnv("CRAG_DATABASE_URL", ""); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("cragd: opening export database: %v", err)
		}
		exportDB = db
		defer exportDB.Close()
	}

	core, err := crag.New(crag.Options{
		Logger:            logger,
		Transport:         gateway.NewHTTPTransport(30 * time.Second),
		Endpoints:         nil,
		Tools:             nil,
		EnableHWSampler:   config.GetEnvBool("CRAG_ENABLE_HW_SAMPLER", true),
		EnableBridgeWatch: redisClient != nil,
		BridgeRedis:       bridgewatch.Config{Client: redisClient},
		ExportDB:          exportDB,
	})
	if err != nil {
		log.Fatalf("cragd: failed to construct core: %v", err)
	}

	if core.Store != nil {
		if migrationsDir := config.GetEnv("CRAG_EXPORT_MIGRATIONS_DIR", ""); migrationsDir != "" {
			if err := core.Store.Migrate(migrationsDir); err != nil {
				log.Fatalf("cragd: running export store migrations: %v", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go core.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", core.Handler())

	port := config.GetEnv("PORT", "8080")
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Infof("cragd starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("cragd: server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("cragd shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("cragd: shutdown error")
	}
}
