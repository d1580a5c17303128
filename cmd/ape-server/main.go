// Command ape-server runs the Adaptive Parallelism Estimator as an HTTP
// service: gin for the predict/report API, Postgres for the State Store,
// Prometheus for metrics, following the shape of cmd/order-service.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/dimajoyti/ape/internal/estimator/config"
	estimatorpkg "github.com/dimajoyti/ape/internal/estimator/estimator"
	"github.com/dimajoyti/ape/internal/estimator/postgres"
	apehttp "github.com/dimajoyti/ape/internal/estimator/transport/http"
	"github.com/dimajoyti/ape/pkg/logger"
	"github.com/dimajoyti/ape/pkg/monitoring"
)

const serviceName = "ape"

func main() {
	log := logger.New(serviceName)
	log.Info("Starting Adaptive Parallelism Estimator service...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.WithError(err).Fatal("Failed to open database connection")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	log.Info("Connected to Postgres successfully")

	store := postgres.New(db, log)
	promMetrics := monitoring.NewPrometheusMetrics()
	metrics := monitoring.NewEstimatorMetrics(promMetrics)

	est := estimatorpkg.New(store, log, metrics)
	est.HistoryWindow = cfg.Estimator.HistoryWindow
	est.CalibrationHistoryLimit = cfg.Estimator.CalibrationHistoryLimit
	est.CalibrationS = cfg.Estimator.CalibrationS
	est.MaxRetries = cfg.Estimator.MaxRetries
	est.SaturatedSearchSpace = cfg.Estimator.SaturatedSearchSpace
	est.SearchSpaceFloor = cfg.Estimator.SearchSpaceFloor
	est.SearchSpaceScale = cfg.Estimator.SearchSpaceScale

	health := monitoring.NewHealthChecker()
	health.AddCheck("postgres", func(ctx context.Context) error {
		return db.PingContext(ctx)
	})

	httpServer := startHTTPServer(cfg, est, health, log)

	var metricsServer *http.Server
	if cfg.Monitoring.Enabled {
		metricsServer = startMetricsServer(cfg, promMetrics, log)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Info("Estimator service is running. Press Ctrl+C to stop.")
	<-c

	log.Info("Shutting down Estimator service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("metrics server shutdown error")
		}
	}
	if err := db.Close(); err != nil {
		log.WithError(err).Error("Error closing database connection")
	}

	log.Info("Estimator service stopped gracefully")
}

func startHTTPServer(cfg *config.Config, est *estimatorpkg.Estimator, health *monitoring.HealthChecker, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := apehttp.NewHandlers(est, log, health)
	handlers.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	return srv
}

func startMetricsServer(cfg *config.Config, promMetrics *monitoring.PrometheusMetrics, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Monitoring.Path, promMetrics.Handler())

	addr := fmt.Sprintf(":%d", cfg.Monitoring.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.WithField("addr", addr).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return srv
}
