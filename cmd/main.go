package main

import (
	"context"
	"fmt"
	stlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rentman-app/matching-service/internal/config"
	consul_client "github.com/rentman-app/matching-service/internal/consul"
	"github.com/rentman-app/matching-service/internal/handlers"
	"github.com/rentman-app/matching-service/internal/matching"
	"github.com/rentman-app/matching-service/internal/middleware"
	nats_client "github.com/rentman-app/matching-service/internal/nats"
	"github.com/rentman-app/matching-service/internal/server"
	"github.com/rentman-app/matching-service/internal/store"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		stlog.Fatalf("Failed to load configuration: %v", err) // Use standard log before Zap is up
	}

	// --- Logger ---
	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		stlog.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync() // Flush logs before exiting
	}()

	logger.Info("Rentman Matching Service starting up...")

	// --- Consul Client & Service Registration ---
	// The service stays useful without Consul (local dev, tests), so a
	// registration failure degrades rather than aborts.
	var serviceID string
	consulClient, err := consul_client.Connect(cfg.ConsulAddress, logger)
	if err != nil {
		logger.Warn("Running without Consul registration. Service discovery will not see this instance.", zap.Error(err))
		consulClient = nil
	} else {
		serviceID = config.GenerateServiceID(cfg.ServiceIDPrefix)
		if err := consul_client.RegisterService(consulClient, cfg, serviceID, logger); err != nil {
			logger.Error("Failed to register service with Consul, continuing unregistered", zap.Error(err))
			consulClient = nil
		} else {
			logger.Info("Successfully registered service with Consul",
				zap.String("service_name", cfg.ServiceName),
				zap.String("service_id", serviceID),
			)
		}
	}

	// --- Stores ---
	taskStore, operatorDir, storeCloser, err := setupStores(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize stores", zap.Error(err))
	}
	defer func() {
		if err := storeCloser(); err != nil {
			logger.Error("Error closing store", zap.Error(err))
		}
	}()

	// --- NATS Client (assignment events are best-effort) ---
	nc, err := nats_client.Connect(cfg.NatsAddress, logger)
	if err != nil {
		logger.Warn("Running without NATS connection. Assignment events will not be published.", zap.Error(err))
	}
	var publisher matching.AssignmentPublisher
	if nc != nil {
		publisher = nats_client.NewAssignmentPublisher(nc, cfg.NatsAssignmentSubject, logger)
	}

	// --- Matching Core ---
	svc := matching.NewService(taskStore, operatorDir, publisher, logger, matching.Options{
		ReputationWeight: cfg.ReputationWeight,
		GrowthWeight:     cfg.GrowthWeight,
		TopCandidates:    cfg.TopCandidates,
		RotationFactor:   cfg.RotationFactor,
	})

	// --- Setup Router and HTTP Server ---
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(NewStructuredLogger(logger)) // Zap logging middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	// Health Check endpoint (required by Consul registration)
	r.Get(cfg.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
		healthStatus := http.StatusOK
		healthMsg := "Matching Service is healthy."

		if nc == nil || nc.Status() != nats.CONNECTED {
			healthMsg += " NATS: degraded."
			logger.Debug("Health check: NATS is not connected")
		} else {
			healthMsg += " NATS: OK."
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(healthStatus)
		fmt.Fprintln(w, healthMsg)
	})

	matchingHandler := handlers.NewMatchingHandler(logger, svc)
	r.Mount("/api/v1", matchingHandler.Routes())
	logger.Info("Matching API routes mounted under /api/v1")

	srv := server.NewServer(cfg, r, logger)

	// --- Start Server Goroutine ---
	go srv.Start()

	// --- Graceful Shutdown & Consul Deregistration ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	if consulClient != nil {
		if err := consul_client.DeregisterService(consulClient, serviceID, logger); err != nil {
			logger.Error("Error deregistering service from Consul", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv.Stop(ctx)

	if nc != nil {
		logger.Info("Draining NATS connection...")
		if err := nc.Drain(); err != nil {
			logger.Error("Error draining NATS connection", zap.Error(err))
		}
	}

	logger.Info("Matching Service gracefully stopped")
}

// setupStores builds the task store and operator directory for the configured
// backend. Both backends are served by one composite store; the closer tears
// it down once.
func setupStores(cfg *config.Config, logger *zap.Logger) (store.TaskStore, store.OperatorDirectory, func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreQueryTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating pgx pool: %w", err)
		}
		pg := store.NewPostgresStore(pool, logger)
		if err := pg.Initialize(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("initializing postgres store: %w", err)
		}
		logger.Info("PostgreSQL store initialized")
		return pg, pg, pg.Close, nil
	case "memory", "":
		mem := store.NewInMemoryStore()
		logger.Info("In-memory store initialized")
		return mem, mem, mem.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// setupLogger configures Zap based on the log level string.
func setupLogger(levelString string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	if err := logLevel.Set(levelString); err != nil {
		logLevel = zapcore.InfoLevel // Default to info if parsing fails
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(logLevel),
		Development: false,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

// NewStructuredLogger returns a middleware that logs request details using Zap.
func NewStructuredLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				logger.Info("Request completed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_ip", r.RemoteAddr),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", duration),
				)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
