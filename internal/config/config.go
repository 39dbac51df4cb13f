package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration. Command-line flags override
// these values when explicitly set.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`

	// Name generation.
	Provider        string `env:"DOMHAUL_PROVIDER" envDefault:"phrase"` // phrase|anthropic|openai|ollama
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-haiku-4-5"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OllamaBaseURL   string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaModel     string `env:"OLLAMA_MODEL" envDefault:"llama3.2"`
	NameCount       int    `env:"NAME_COUNT" envDefault:"15"`
	MaxRounds       int    `env:"MAX_ROUNDS" envDefault:"5"`

	// Checking.
	Lookup           string        `env:"DOMHAUL_LOOKUP" envDefault:"auto"` // auto|rdap|whois
	CheckConcurrency int           `env:"CHECK_CONCURRENCY" envDefault:"5"`
	CheckMaxAttempts int           `env:"CHECK_MAX_ATTEMPTS" envDefault:"4"`
	LookupTimeout    time.Duration `env:"LOOKUP_TIMEOUT" envDefault:"15s"`
	LookupRPS        float64       `env:"LOOKUP_RPS" envDefault:"0"`

	// Taken-cache.
	RedisURL    string        `env:"REDIS_URL"`
	DatabaseURL string        `env:"DATABASE_URL"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"168h"`

	// Registrar enrichment.
	PorkbunAPIKey    string `env:"PORKBUN_API_KEY"`
	PorkbunSecretKey string `env:"PORKBUN_SECRET_API_KEY"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
