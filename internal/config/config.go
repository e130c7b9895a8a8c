package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	RedisURL     string
	ServerPort   string
	ServerHost   string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	LogLevel  string
	LogFormat string

	JWTSecret string

	// Transition policy
	ApproverRoles         []string
	AutoRevertEnabled     bool
	AutoRevertWindow      time.Duration
	RequireMFAForRollback bool
	BreakGlassCodeHashes  []string

	// MFA verifier
	MFAProvider    string // "totp" or "remote"
	MFATOTPSecrets map[string]string
	MFARemoteURL   string
	MFATimeout     time.Duration

	// Notifications
	OpsWebhookURL      string
	CriticalWebhookURL string
	OpsDistributionList string

	// Scheduler
	SchedulerPollInterval time.Duration

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitAttempts int
	RateLimitWindow   time.Duration
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidMFAProvider = errors.New("MFA_PROVIDER must be \"totp\" or \"remote\"")
	ErrMissingRemoteURL   = errors.New("MFA_REMOTE_URL is required when MFA_PROVIDER=remote")
)

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		ServerPort:   getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:   getEnvOrDefault("SERVER_HOST", "localhost"),
		Environment:  getEnvOrDefault("ENV", "development"),
		ReadTimeout:  getEnvOrDefaultDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvOrDefaultDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:  getEnvOrDefaultDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		ApproverRoles:         splitCSV(getEnvOrDefault("APPROVER_ROLES", "security_team,operations_team")),
		AutoRevertEnabled:     getEnvOrDefaultBool("AUTO_REVERT_ENABLED", true),
		AutoRevertWindow:      getEnvOrDefaultDuration("AUTO_REVERT_WINDOW", 4*time.Hour),
		RequireMFAForRollback: getEnvOrDefaultBool("REQUIRE_MFA_FOR_ROLLBACK", false),
		BreakGlassCodeHashes:  splitCSV(os.Getenv("BREAK_GLASS_CODE_HASHES")),

		MFAProvider:    getEnvOrDefault("MFA_PROVIDER", "totp"),
		MFATOTPSecrets: parseKeyValuePairs(os.Getenv("MFA_TOTP_SECRETS")),
		MFARemoteURL:   os.Getenv("MFA_REMOTE_URL"),
		MFATimeout:     getEnvOrDefaultDuration("MFA_TIMEOUT", 5*time.Second),

		OpsWebhookURL:       os.Getenv("OPS_WEBHOOK_URL"),
		CriticalWebhookURL:  os.Getenv("CRITICAL_WEBHOOK_URL"),
		OpsDistributionList: getEnvOrDefault("OPS_DISTRIBUTION_LIST", "mode-governance-ops"),

		SchedulerPollInterval: getEnvOrDefaultDuration("SCHEDULER_POLL_INTERVAL", 30*time.Second),

		RateLimitEnabled:  getEnvOrDefaultBool("RATE_LIMIT_ENABLED", true),
		RateLimitAttempts: getEnvOrDefaultInt("RATE_LIMIT_ATTEMPTS", 30),
		RateLimitWindow:   getEnvOrDefaultDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}

	switch cfg.MFAProvider {
	case "totp":
	case "remote":
		if cfg.MFARemoteURL == "" {
			return nil, ErrMissingRemoteURL
		}
	default:
		return nil, ErrInvalidMFAProvider
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// interpret as seconds if numeric, else parse like Go duration
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}

// parseKeyValuePairs parses "actor:secret,actor2:secret2" style values
func parseKeyValuePairs(value string) map[string]string {
	res := make(map[string]string)
	for _, pair := range splitCSV(value) {
		idx := strings.Index(pair, ":")
		if idx <= 0 {
			continue
		}
		res[pair[:idx]] = pair[idx+1:]
	}
	return res
}
