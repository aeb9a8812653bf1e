// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Policy      PolicyConfig
	Protocol    ProtocolConfig
	PhoneVerify PhoneVerifyConfig
	Cards       CardConfig
	Device      DeviceConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// RateLimitConfig bounds request volume per client IP. Applied only when
// Redis is configured.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// PolicyConfig is the single source of truth for the distance/amount
// decision thresholds.
type PolicyConfig struct {
	// CoLocatedMeters is the radius treated as "same place" (accept band).
	CoLocatedMeters float64
	// ConfirmMeters is the outer radius of the confirmation band.
	ConfirmMeters float64
	// HighValueAmount is the amount at or above which a co-located
	// transaction still requires user confirmation.
	HighValueAmount float64
	// StepUpAmount is the synchronous-path threshold above which SMS
	// step-up verification is required.
	StepUpAmount float64
	// MaxDistanceMiles bounds the synchronous registered-location check.
	MaxDistanceMiles float64
}

// ProtocolConfig holds the timing constants of the authorization protocol.
type ProtocolConfig struct {
	ProofMaxAge         time.Duration
	ConfirmationTimeout time.Duration
	StepUpTTL           time.Duration
	PendingSweepEvery   time.Duration
	PendingMaxAge       time.Duration
}

type PhoneVerifyConfig struct {
	// Provider selects the collaborator: "twilio" or "local".
	Provider          string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioVerifySID   string
	LocalProviderSeed string
}

type CardConfig struct {
	// AutoProvision registers unknown cards at the default location on
	// first use of the synchronous validation path.
	AutoProvision bool
	DefaultLat    float64
	DefaultLon    float64
	DefaultPhone  string
}

// DeviceConfig controls device-key provisioning. An empty seed falls back
// to the seed baked into the demo mobile client.
type DeviceConfig struct {
	SecretSeed string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Policy: PolicyConfig{
			CoLocatedMeters:  getFloatEnv("POLICY_COLOCATED_METERS", 20),
			ConfirmMeters:    getFloatEnv("POLICY_CONFIRM_METERS", 500),
			HighValueAmount:  getFloatEnv("POLICY_HIGH_VALUE_AMOUNT", 100),
			StepUpAmount:     getFloatEnv("POLICY_STEPUP_AMOUNT", 100),
			MaxDistanceMiles: getFloatEnv("POLICY_MAX_DISTANCE_MILES", 0.25),
		},
		Protocol: ProtocolConfig{
			ProofMaxAge:         getDurationEnv("PROOF_MAX_AGE", 300*time.Second),
			ConfirmationTimeout: getDurationEnv("CONFIRMATION_TIMEOUT", 30*time.Second),
			StepUpTTL:           getDurationEnv("STEPUP_TTL", 300*time.Second),
			PendingSweepEvery:   getDurationEnv("PENDING_SWEEP_EVERY", time.Minute),
			PendingMaxAge:       getDurationEnv("PENDING_MAX_AGE", 10*time.Minute),
		},
		PhoneVerify: PhoneVerifyConfig{
			Provider:          getEnv("PHONE_VERIFY_PROVIDER", "local"),
			TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioVerifySID:   getEnv("TWILIO_VERIFY_SERVICE_SID", ""),
			LocalProviderSeed: getEnv("PHONE_VERIFY_LOCAL_SEED", ""),
		},
		Cards: CardConfig{
			AutoProvision: getBoolEnv("CARD_AUTO_PROVISION", true),
			DefaultLat:    getFloatEnv("CARD_DEFAULT_LAT", 42.3770),
			DefaultLon:    getFloatEnv("CARD_DEFAULT_LON", -71.1167),
			DefaultPhone:  getEnv("CARD_DEFAULT_PHONE", "+1234567890"),
		},
		Device: DeviceConfig{
			SecretSeed: getEnv("DEVICE_SECRET_SEED", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}
