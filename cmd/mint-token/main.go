package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troikatech/call-recorder/pkg/auth"
	"github.com/troikatech/call-recorder/pkg/env"
	"github.com/troikatech/call-recorder/pkg/logger"
)

// mint-token issues an operator bearer token for the /api routes, signed with
// the server's JWT_SECRET.
func main() {
	operatorID := flag.String("operator", "", "operator id (default: random uuid)")
	role := flag.String("role", auth.RoleOperator, "token role: operator or viewer")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		log.Fatalf("JWT_SECRET is not set; the server accepts /api requests without a token")
	}
	if *role != auth.RoleOperator && *role != auth.RoleViewer {
		log.Fatalf("Unknown role %q", *role)
	}
	if *operatorID == "" {
		*operatorID = uuid.NewString()
	}

	token, expiresAt, err := auth.GenerateAccessToken(*operatorID, *role, cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, *ttl)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	logger.Log.Info("Minted operator token",
		zap.String("operator_id", *operatorID),
		zap.String("role", *role),
		zap.Time("expires_at", expiresAt),
	)
	fmt.Println(token)
}
