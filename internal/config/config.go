package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8000"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://localhost:5173"`

	// Auth
	JWTSecret     string        `env:"SECRET_KEY" envDefault:"supersecretkey"`
	TokenLifetime time.Duration `env:"ACCESS_TOKEN_LIFETIME" envDefault:"30m"`

	// Persistence
	DatabasePath  string `env:"DATABASE_PATH" envDefault:"data/askgpt.db"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Per-capability models and output budgets
	ChatModel        string `env:"CHAT_MODEL" envDefault:"gpt-4.1-nano"`
	ChatMaxTokens    int    `env:"CHAT_MAX_TOKENS" envDefault:"2000"`
	VisionModel      string `env:"VISION_MODEL" envDefault:"gpt-4o"`
	VisionMaxTokens  int    `env:"VISION_MAX_TOKENS" envDefault:"2000"`
	CodingModel      string `env:"CODING_MODEL" envDefault:"gemini-2.5-pro"`
	CodingMaxTokens  int    `env:"CODING_MAX_TOKENS" envDefault:"5000"`
	ClassifierModel  string `env:"CLASSIFIER_MODEL" envDefault:"llama3-8b-8192"`
	ImageModel       string `env:"IMAGE_MODEL" envDefault:"gemini-3-pro-image-preview"`
	ImageSize        string `env:"IMAGE_SIZE" envDefault:"1024x1024"`
	RemovalServerURL string `env:"REMBG_URL" envDefault:"http://localhost:7000/api/remove"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`

	// Automation agent
	SMTPServer   string `env:"SMTP_SERVER" envDefault:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPEmail    string `env:"SMTP_EMAIL"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	// Retention (0 disables the cleanup job)
	RetentionDays     int    `env:"RETENTION_DAYS" envDefault:"0"`
	RetentionSchedule string `env:"RETENTION_SCHEDULE" envDefault:"0 3 * * *"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
