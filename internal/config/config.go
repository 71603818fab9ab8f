package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the chat gateway.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"3000"`

	// Upstream completion service (OpenAI-compatible, e.g. OpenRouter)
	CompletionBaseURL string `envconfig:"COMPLETION_BASE_URL" default:"https://openrouter.ai/api/v1"`
	CompletionAPIKey  string `envconfig:"COMPLETION_API_KEY" required:"true"`
	StreamModel       string `envconfig:"STREAM_MODEL" default:"google/gemini-2.5-flash-lite"`
	OneShotModel      string `envconfig:"ONESHOT_MODEL" default:"deepseek/deepseek-chat"`

	// Upstream speech synthesis service (ElevenLabs)
	SynthesisAPIKey  string `envconfig:"SYNTHESIS_API_KEY" required:"true"`
	SynthesisVoiceID string `envconfig:"SYNTHESIS_VOICE_ID" default:"JBFqnCBsd6RMkjVDRZzb"`
	SynthesisModelID string `envconfig:"SYNTHESIS_MODEL_ID" default:"eleven_flash_v2_5"`
	SynthesisBaseURL string `envconfig:"SYNTHESIS_BASE_URL" default:""` // empty = public API

	// Conversation lifecycle thresholds (user messages per conversation)
	WrapUpThreshold  int `envconfig:"WRAP_UP_THRESHOLD" default:"4"`
	GoodbyeThreshold int `envconfig:"GOODBYE_THRESHOLD" default:"5"`

	// Connection pooling and admission control
	CompletionPoolSize int `envconfig:"COMPLETION_POOL_SIZE" default:"50"`
	SynthesisPoolSize  int `envconfig:"SYNTHESIS_POOL_SIZE" default:"50"`
	MaxConnections     int `envconfig:"MAX_CONNECTIONS" default:"100"`

	// Optional Postgres DSN for the turn trace store; tracing is off when empty.
	TraceDBURL string `envconfig:"TRACE_DB_URL" default:""`
}

// Load reads configuration from a .env file (if present) and the
// environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.GoodbyeThreshold < cfg.WrapUpThreshold {
		return nil, fmt.Errorf("GOODBYE_THRESHOLD (%d) must be >= WRAP_UP_THRESHOLD (%d)", cfg.GoodbyeThreshold, cfg.WrapUpThreshold)
	}
	return &cfg, nil
}
