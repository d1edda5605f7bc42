package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Lifecycle    LifecycleConfig
	GenAI        GenAIConfig
	Geo          GeoConfig
	Evidence     EvidenceConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Driver   string
	Slot     string
	FilePath string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// LifecycleConfig holds the ticket lifecycle tunables.
type LifecycleConfig struct {
	// EscalationThresholdMinutes is measured in wall-clock minutes.
	EscalationThresholdMinutes int
	DefaultAuthorityID         string
	AuthoritiesFile            string
	ResolutionWindows          map[string]time.Duration
}

// GenAIConfig selects and configures the generative analysis provider.
type GenAIConfig struct {
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
}

// GeoConfig configures geocoding, routing and hazard detection.
type GeoConfig struct {
	GeocoderBaseURL    string
	GeocoderUserAgent  string
	GeocoderCacheHours int
	RouterBaseURL      string
	HazardRadiusKm     float64
}

// EvidenceConfig controls where uploaded images are kept.
type EvidenceConfig struct {
	Dir      string
	MaxBytes int64
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

const defaultResolutionWindows = "Low=168h,Medium=72h,High=24h,Emergency=4h"

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	windows, err := ParseResolutionWindows(getEnv("RESOLUTION_WINDOWS", defaultResolutionWindows))
	if err != nil {
		return nil, fmt.Errorf("invalid RESOLUTION_WINDOWS: %w", err)
	}

	hazardRadius, err := strconv.ParseFloat(getEnv("HAZARD_RADIUS_KM", "0.1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid HAZARD_RADIUS_KM: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "civic-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", "file")),
			Slot:     getEnv("STORE_SLOT", "civic_ai_tickets"),
			FilePath: getEnv("STORE_FILE_PATH", "data/tickets.json"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Lifecycle: LifecycleConfig{
			EscalationThresholdMinutes: getEnvAsInt("ESCALATION_THRESHOLD_MINUTES", 2),
			DefaultAuthorityID:         getEnv("DEFAULT_AUTHORITY_ID", "auth_muni"),
			AuthoritiesFile:            os.Getenv("AUTHORITIES_FILE"),
			ResolutionWindows:          windows,
		},
		GenAI: GenAIConfig{
			Provider:        strings.ToLower(getEnv("GENAI_PROVIDER", "stub")),
			AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		},
		Geo: GeoConfig{
			GeocoderBaseURL:    getEnv("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
			GeocoderUserAgent:  getEnv("GEOCODER_USER_AGENT", "CivicAI/1.0"),
			GeocoderCacheHours: getEnvAsInt("GEOCODER_CACHE_TTL_HOURS", 720),
			RouterBaseURL:      getEnv("ROUTER_BASE_URL", "https://router.project-osrm.org"),
			HazardRadiusKm:     hazardRadius,
		},
		Evidence: EvidenceConfig{
			Dir:      getEnv("EVIDENCE_DIR", "data/evidence"),
			MaxBytes: int64(getEnvAsInt("EVIDENCE_MAX_BYTES", 10<<20)),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// EscalationThreshold returns the configured threshold as a duration.
func (l LifecycleConfig) EscalationThreshold() time.Duration {
	return time.Duration(l.EscalationThresholdMinutes) * time.Minute
}

// CacheTTL returns the geocoder cache lifetime.
func (g GeoConfig) CacheTTL() time.Duration {
	if g.GeocoderCacheHours <= 0 {
		return 0
	}
	return time.Duration(g.GeocoderCacheHours) * time.Hour
}

// ParseResolutionWindows parses "Low=168h,High=24h" into a severity-keyed table.
func ParseResolutionWindows(raw string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q: expected Severity=duration", entry)
		}
		d, err := time.ParseDuration(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("entry %q: duration must be positive", entry)
		}
		out[strings.TrimSpace(key)] = d
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
