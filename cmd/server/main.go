package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/internal/api"
	"github.com/troikatech/call-recorder/internal/api/handlers"
	"github.com/troikatech/call-recorder/internal/voice"
	"github.com/troikatech/call-recorder/pkg/assets"
	"github.com/troikatech/call-recorder/pkg/env"
	"github.com/troikatech/call-recorder/pkg/logger"
	"github.com/troikatech/call-recorder/pkg/metrics"
	"github.com/troikatech/call-recorder/pkg/otel"
	"github.com/troikatech/call-recorder/pkg/storage"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing(api.ServiceName, serviceVersion, cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Log.Warn("Failed to flush traces", zap.Error(err))
				}
			}()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting call recorder",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
		zap.String("socket_path", cfg.SocketPath),
		zap.String("digits_path", cfg.DigitsPath),
		zap.String("recordings_path", cfg.RecordingsPath),
	)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opt)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Rate limiting fails open, so an unreachable redis is not fatal.
			logger.Log.Warn("Failed to connect to Redis", zap.Error(err))
		}
		cancel()
		defer redisClient.Close()
	} else {
		logger.Log.Info("REDIS_URL not set, rate limiting disabled")
	}

	storageDriver, err := storage.NewDriver(cfg.StorageDriver, cfg.RecordingsPath)
	if err != nil {
		logger.Log.Fatal("Failed to create storage driver", zap.Error(err))
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	manager := voice.NewManager(voice.Options{
		Assets:       assets.NewDirSource(cfg.DigitsPath),
		Finalizer:    voice.NewFinalizer(storageDriver, cfg.RecordingWriteTimeout, m, logger.Log),
		Metrics:      m,
		Logger:       logger.Log,
		ContentType:  cfg.PlaybackContentType,
		SampleRate:   cfg.PlaybackSampleRate,
		WriteTimeout: cfg.WSWriteTimeout,
	})

	h := handlers.NewHandler(cfg, manager, storageDriver, redisClient, prometheus.DefaultGatherer)
	router := api.NewRouter(cfg, h, m, redisClient)

	// No Read/WriteTimeout: audio sockets stay open for the whole call.
	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Log.Info("Call recorder listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by the server, so
	// Shutdown only stops new requests; the manager drains the calls.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := manager.Shutdown(ctx); err != nil {
		logger.Log.Error("Calls did not drain before the shutdown deadline",
			zap.Error(err),
			zap.Int("open_sessions", manager.OpenSessions()),
		)
	}

	logger.Log.Info("Server exited")
}
