package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/troikatech/call-recorder/internal/api/handlers"
	"github.com/troikatech/call-recorder/pkg/auth"
	"github.com/troikatech/call-recorder/pkg/env"
	"github.com/troikatech/call-recorder/pkg/logger"
	"github.com/troikatech/call-recorder/pkg/metrics"
	"github.com/troikatech/call-recorder/pkg/middleware"
	"github.com/troikatech/call-recorder/pkg/otel"
)

const ServiceName = "call-recorder"

// NewRouter wires every route. redisClient may be nil, which disables rate
// limiting and idempotency replay.
func NewRouter(cfg *env.Config, h *handlers.Handler, m *metrics.Metrics, redisClient *redis.Client) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 << 20))
	router.Use(m.GinMiddleware())

	if cfg.OTELEnabled {
		router.Use(otel.GinMiddleware(ServiceName))
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if cfg.CORSAllowedOrigins == "*" || cfg.CORSAllowedOrigins == "" {
		corsConfig.AllowAllOrigins = true
	} else {
		for _, o := range strings.Split(cfg.CORSAllowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, o)
			}
		}
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"}
	router.Use(cors.New(corsConfig))

	var rateLimiter *middleware.RateLimiter
	if redisClient != nil {
		rateLimiter = middleware.NewRateLimiter(redisClient, cfg.APIRateLimitRPM, logger.Log)
	}
	limit := func(scope string) []gin.HandlerFunc {
		if rateLimiter == nil {
			return nil
		}
		return []gin.HandlerFunc{rateLimiter.Middleware(scope)}
	}

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", h.GetPrometheusMetrics)

	// Media server surface
	router.POST("/answer", h.Answer)
	router.GET(cfg.SocketPath, h.CallSocket)
	router.GET("/hello", append(limit("hello"), h.Hello)...)

	api := router.Group("/api")
	if cfg.JWTSecret != "" {
		api.Use(middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience))
	} else {
		logger.Log.Warn("JWT_SECRET is not set, /api is unauthenticated")
	}
	if redisClient != nil {
		api.Use(rateLimiter.Middleware("api"))
		api.Use(middleware.IdempotencyMiddleware(redisClient, logger.Log))
	}
	{
		calls := api.Group("/calls")
		{
			calls.GET("", h.ListCalls)
			calls.POST("/:call_sid/play",
				middleware.ValidateCallIDParam("call_sid"),
				middleware.RoleMiddleware(auth.RoleOperator),
				h.PlayToCall,
			)
		}

		api.GET("/recordings/:call_sid",
			middleware.ValidateCallIDParam("call_sid"),
			middleware.RoleMiddleware(auth.RoleViewer, auth.RoleOperator),
			h.GetRecording,
		)
	}

	return router
}
