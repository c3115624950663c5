package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	AppPort  string
	LogLevel string

	// Call-control webhook
	SocketPath    string
	AnswerSayText string
	PassDTMF      bool

	// Playback
	DigitsPath          string
	HelloAsset          string
	PlaybackContentType string
	PlaybackSampleRate  int

	// Recording
	StorageDriver         string
	RecordingsPath        string
	RecordingWriteTimeout time.Duration

	// WebSocket transport
	WSReadLimit    int64
	WSReadTimeout  time.Duration // 0 disables ping/pong keepalive
	WSWriteTimeout time.Duration

	ShutdownTimeout time.Duration

	RedisURL        string // optional, enables rate limiting
	APIRateLimitRPM int

	JWTSecret   string // optional, enables bearer auth on /api
	JWTIssuer   string
	JWTAudience string

	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// A missing .env is fine; the process may be configured from the environment only.
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		AppPort:  getEnv("APP_PORT", getEnv("PORT", "3000")),
		LogLevel: getEnv("LOG_LEVEL", getEnv("LOGLEVEL", "info")),

		SocketPath:    getEnv("SOCKET_PATH", "/socket"),
		AnswerSayText: getEnv("ANSWER_SAY_TEXT", "Connecting to Socket"),
		PassDTMF:      getEnvBool("PASS_DTMF", true),

		DigitsPath:          getEnv("DIGITS_PATH", "digits"),
		HelloAsset:          getEnv("HELLO_ASSET", "hello"),
		PlaybackContentType: getEnv("PLAYBACK_CONTENT_TYPE", "wav"),
		PlaybackSampleRate:  getEnvInt("PLAYBACK_SAMPLE_RATE", 8000),

		StorageDriver:         getEnv("STORAGE_DRIVER", "local"),
		RecordingsPath:        getEnv("RECORDINGS_PATH", "Recordings"),
		RecordingWriteTimeout: getEnvSeconds("RECORDING_WRITE_TIMEOUT_SEC", 30),

		WSReadLimit:    int64(getEnvInt("WS_READ_LIMIT", 1<<20)),
		WSReadTimeout:  getEnvSeconds("WS_READ_TIMEOUT_SEC", 60),
		WSWriteTimeout: getEnvSeconds("WS_WRITE_TIMEOUT_SEC", 5),

		ShutdownTimeout: getEnvSeconds("SHUTDOWN_TIMEOUT_SEC", 10),

		RedisURL:        getEnv("REDIS_URL", ""),
		APIRateLimitRPM: getEnvInt("API_RATE_LIMIT_RPM", 180),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "call-recorder"),
		JWTAudience: getEnv("JWT_AUDIENCE", "call-recorder-api"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.SocketPath, "/") {
		return fmt.Errorf("SOCKET_PATH must start with '/': %q", c.SocketPath)
	}
	if c.PlaybackSampleRate <= 0 {
		return fmt.Errorf("PLAYBACK_SAMPLE_RATE must be positive: %d", c.PlaybackSampleRate)
	}
	if c.WSReadLimit <= 0 {
		return fmt.Errorf("WS_READ_LIMIT must be positive: %d", c.WSReadLimit)
	}
	if c.WSReadTimeout < 0 || c.WSWriteTimeout <= 0 {
		return fmt.Errorf("invalid websocket timeouts: read=%s write=%s", c.WSReadTimeout, c.WSWriteTimeout)
	}
	if c.RecordingWriteTimeout <= 0 {
		return fmt.Errorf("RECORDING_WRITE_TIMEOUT_SEC must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
