package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ListenAddr      string
	TokensDir       string
	KeyFile         string
	SentinelLabel   string
	PollInterval    int // minutes between reconciliation passes
	LookbackHours   int // how far back each pass looks for mail
	ShutdownTimeout int // seconds

	MSClientID     string
	MSClientSecret string
	MSTenantID     string
	RedirectURI    string

	GeminiAPIKey string
	GeminiModel  string

	SessionSecret string
	PrettyLogs    bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	clientID := os.Getenv("MS_CLIENT_ID")
	clientSecret := os.Getenv("MS_CLIENT_SECRET")
	tenantID := os.Getenv("MS_TENANT_ID")
	if clientID == "" || clientSecret == "" || tenantID == "" {
		return nil, fmt.Errorf("MS_CLIENT_ID, MS_CLIENT_SECRET and MS_TENANT_ID are required")
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, event extraction will not work")
	}

	return &Config{
		ListenAddr:      envOr("LISTEN_ADDR", ":5000"),
		TokensDir:       envOr("TOKENS_DIR", "tokens"),
		KeyFile:         envOr("KEY_FILE", "secret.key"),
		SentinelLabel:   envOr("SENTINEL_LABEL", "AddedToCalendar"),
		PollInterval:    envIntOr("POLL_INTERVAL_MINUTES", 50),
		LookbackHours:   envIntOr("LOOKBACK_HOURS", 24),
		ShutdownTimeout: envIntOr("SHUTDOWN_TIMEOUT_SECONDS", 30),
		MSClientID:      clientID,
		MSClientSecret:  clientSecret,
		MSTenantID:      tenantID,
		RedirectURI:     envOr("REDIRECT_URI", "http://localhost:5000/oauth/callback"),
		GeminiAPIKey:    geminiAPIKey,
		GeminiModel:     envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		PrettyLogs:      os.Getenv("PRETTY_LOGS") == "true",
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Int("default", fallback).Msg("invalid numeric setting, using default")
		return fallback
	}
	return n
}
