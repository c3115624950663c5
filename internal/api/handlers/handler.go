package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/internal/voice"
	"github.com/troikatech/call-recorder/pkg/env"
	"github.com/troikatech/call-recorder/pkg/logger"
	"github.com/troikatech/call-recorder/pkg/storage"
)

type Handler struct {
	cfg         *env.Config
	manager     *voice.Manager
	recordings  storage.Driver
	redisClient *redis.Client // nil when REDIS_URL is unset
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	promHandler http.Handler
}

func NewHandler(
	cfg *env.Config,
	manager *voice.Manager,
	recordings storage.Driver,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
) *Handler {
	h := &Handler{
		cfg:         cfg,
		manager:     manager,
		recordings:  recordings,
		redisClient: redisClient,
		logger:      logger.Log,
		promHandler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
	h.upgrader = newUpgrader(cfg, h.logger)
	return h
}
