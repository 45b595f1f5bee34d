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
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":5000"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	Temperature      float32     `env:"LLM_TEMPERATURE" envDefault:"0.15"`
	MaxTokens        int         `env:"LLM_MAX_TOKENS" envDefault:"900"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// Research and refinement
	SerpAPIKey         string `env:"SERPAPI_API_KEY"`
	SearchResultsCount int    `env:"SEARCH_RESULTS_COUNT" envDefault:"5"`
	SelfRefinePasses   int    `env:"SELF_REFINE_PASSES" envDefault:"1"`

	// Rate limiting
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15s"`
	MaxRequests     int           `env:"MAX_REQUESTS" envDefault:"5"`

	// Sessions
	SessionIdleTTL   time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionSweepSpec string        `env:"SESSION_SWEEP_SPEC" envDefault:"@every 1m"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH"`

	// Storage
	MemoryFilePath string `env:"MEMORY_FILE_PATH" envDefault:"data/memory.json"`
	TurnLogPath    string `env:"TURN_LOG_PATH" envDefault:"logs/turns.jsonl"`
	AppLogPath     string `env:"APP_LOG_PATH" envDefault:"logs/cloudx.log"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Telegram front-end (optional)
	TelegramBotToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramParseMode string `env:"TELEGRAM_PARSE_MODE"`
}

// Parse reads the configuration from the environment.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
