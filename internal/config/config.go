package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LLM provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Visualization threshold bounds. Values outside are clamped.
const (
	minVisualizationThreshold = 0.5
	maxVisualizationThreshold = 0.7
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string
	DBTimeout          time.Duration

	// Generative service
	LLMProvider     string
	LLMModel        string
	LLMFastModel    string // Model hint for scoring and ranking calls
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaHost      string
	AWSRegion       string
	LLMTimeout      time.Duration

	// Push backbone (Pusher-compatible REST API)
	PusherAppID  string
	PusherKey    string
	PusherSecret string
	PusherHost   string

	// Event mirror
	KafkaBrokers     []string
	KafkaEventsTopic string

	// Server
	ServerPort          string
	AgentReloadInterval time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Orchestration tunables
	Tunables Tunables
}

// Tunables are the response-orchestration knobs, read with envconfig.
type Tunables struct {
	RapidMessageThresholdMS   int     `envconfig:"RAPID_MESSAGE_THRESHOLD_MS" default:"300"`
	ResponseDelayMS           int     `envconfig:"RESPONSE_DELAY_MS" default:"3000"`
	MinMessagesBeforeResponse int     `envconfig:"MIN_MESSAGES_BEFORE_RESPONSE" default:"1"`
	MaxConsecutiveHuman       int     `envconfig:"MAX_CONSECUTIVE_HUMAN_MESSAGES" default:"5"`
	MinResponseIntervalMS     int     `envconfig:"MIN_RESPONSE_INTERVAL_MS" default:"5000"`
	VisualizationThreshold    float64 `envconfig:"VISUALIZATION_CONFIDENCE_THRESHOLD" default:"0.6"`
	MaxConsecutiveChecks      int     `envconfig:"MAX_CONSECUTIVE_CHECKS" default:"3"`
	RapidMessageWindow        int     `envconfig:"RAPID_MESSAGE_WINDOW" default:"2"`
	HistoryLimit              int     `envconfig:"HISTORY_LIMIT" default:"20"`
}

// DefaultTunables returns the tunables used when the environment sets nothing.
func DefaultTunables() Tunables {
	return Tunables{
		RapidMessageThresholdMS:   300,
		ResponseDelayMS:           3000,
		MinMessagesBeforeResponse: 1,
		MaxConsecutiveHuman:       5,
		MinResponseIntervalMS:     5000,
		VisualizationThreshold:    0.6,
		MaxConsecutiveChecks:      3,
		RapidMessageWindow:        2,
		HistoryLimit:              20,
	}
}

// RapidMessageThreshold returns the rapid-succession gap as a duration.
func (t Tunables) RapidMessageThreshold() time.Duration {
	return time.Duration(t.RapidMessageThresholdMS) * time.Millisecond
}

// ResponseDelay returns the debounce delay as a duration.
func (t Tunables) ResponseDelay() time.Duration {
	return time.Duration(t.ResponseDelayMS) * time.Millisecond
}

// MinResponseInterval returns the minimum gap between two responses in a room.
func (t Tunables) MinResponseInterval() time.Duration {
	return time.Duration(t.MinResponseIntervalMS) * time.Millisecond
}

// Validate rejects unusable values and clamps the visualization threshold.
func (t *Tunables) Validate() error {
	if t.RapidMessageThresholdMS < 0 || t.ResponseDelayMS < 0 || t.MinResponseIntervalMS < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if t.MaxConsecutiveHuman < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_HUMAN_MESSAGES must be at least 1, got %d", t.MaxConsecutiveHuman)
	}
	if t.RapidMessageWindow < 1 {
		return fmt.Errorf("RAPID_MESSAGE_WINDOW must be at least 1, got %d", t.RapidMessageWindow)
	}
	if t.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be at least 1, got %d", t.HistoryLimit)
	}
	if t.MaxConsecutiveChecks < 0 {
		t.MaxConsecutiveChecks = 0
	}
	if t.MinMessagesBeforeResponse < 0 {
		t.MinMessagesBeforeResponse = 0
	}
	t.VisualizationThreshold = min(max(t.VisualizationThreshold, minVisualizationThreshold), maxVisualizationThreshold)
	return nil
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		// SurrealDB
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "chorus"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chat"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
		DBTimeout:          getDuration("DB_TIMEOUT", 10*time.Second),

		// LLM
		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", ProviderAnthropic)),
		LLMModel:        getEnv("LLM_MODEL", "claude-sonnet-4-5"),
		LLMFastModel:    getEnv("LLM_FAST_MODEL", ""),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),
		LLMTimeout:      getDuration("LLM_TIMEOUT", 45*time.Second),

		// Pusher
		PusherAppID:  os.Getenv("PUSHER_APP_ID"),
		PusherKey:    os.Getenv("PUSHER_KEY"),
		PusherSecret: os.Getenv("PUSHER_SECRET"),
		PusherHost:   pusherHost(os.Getenv("PUSHER_HOST"), getEnv("PUSHER_CLUSTER", "mt1")),

		// Kafka
		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaEventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "chorus.room-events"),

		// Server
		ServerPort:          getEnv("CHORUS_SERVER_PORT", "8585"),
		AgentReloadInterval: getDuration("AGENT_RELOAD_INTERVAL", 5*time.Minute),

		// Logging
		LogFile:  getEnv("CHORUS_LOG_FILE", "/tmp/chorus.log"),
		LogLevel: parseLogLevel(getEnv("CHORUS_LOG_LEVEL", "INFO")),
	}

	cfg.Tunables = DefaultTunables()
	if err := envconfig.Process("", &cfg.Tunables); err != nil {
		return Config{}, fmt.Errorf("read tunables: %w", err)
	}
	if err := cfg.Tunables.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid tunables: %w", err)
	}

	return cfg, nil
}

// PusherEnabled reports whether push backbone credentials are configured.
func (c Config) PusherEnabled() bool {
	return c.PusherAppID != "" && c.PusherKey != "" && c.PusherSecret != ""
}

// FastModel returns the model hint for cheap scoring calls.
func (c Config) FastModel() string {
	if c.LLMFastModel != "" {
		return c.LLMFastModel
	}
	return c.LLMModel
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func pusherHost(explicit, cluster string) string {
	if explicit != "" {
		return explicit
	}
	return fmt.Sprintf("api-%s.pusher.com", cluster)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
