package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	NodeID      int64
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RateLimit RateLimitConfig
	AI        AIConfig
	Compiler  CompilerConfig
	Analytics AnalyticsConfig
	Features  FeatureFlags

	PlansPath string
}

// RateLimitConfig bounds calls to the reply generation provider per user.
type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	UserRate      float64
	UserBurst     int
}

type AIConfig struct {
	Provider       string
	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	GeminiKey      string
	GeminiModel    string
	Timeout        time.Duration
	RetryBackoff   time.Duration
	UserConcurrent int
	ApologyText    string
	HistoryTurns   int
}

type CompilerConfig struct {
	Mode    string
	Model   string
	Timeout time.Duration
}

type AnalyticsConfig struct {
	Timezone string
}

// FeatureFlags are resolved once at startup. Optional subsystems are wired
// or skipped based on these values, never probed at request time.
type FeatureFlags struct {
	LiveEvents  bool
	LLMCompiler bool
}

const (
	AIProviderNone   = "none"
	AIProviderOpenAI = "openai"
	AIProviderGemini = "gemini"

	CompilerModeRules = "rules"
	CompilerModeLLM   = "llm"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	compilerMode := normalizeCompilerMode(getenv("COMPILER_MODE", CompilerModeRules))

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "replyflow"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		NodeID:       getenvInt64("NODE_ID", 1),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "replyflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "replyflow.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("RATE_LIMIT_REDIS_ADDR", "")),
			RedisPassword: strings.TrimSpace(getenv("RATE_LIMIT_REDIS_PASSWORD", "")),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			UserRate:      getenvFloat("RATE_LIMIT_AI_USER_RATE", 1),
			UserBurst:     getenvInt("RATE_LIMIT_AI_USER_BURST", 5),
		},
		AI: AIConfig{
			Provider:       normalizeAIProvider(getenv("AI_PROVIDER", AIProviderNone)),
			OpenAIKey:      strings.TrimSpace(getenv("OPENAI_API_KEY", "")),
			OpenAIModel:    getenv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:  strings.TrimSpace(getenv("OPENAI_BASE_URL", "")),
			GeminiKey:      strings.TrimSpace(getenv("GEMINI_API_KEY", "")),
			GeminiModel:    getenv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout:        getenvDuration("AI_TIMEOUT", 8*time.Second),
			RetryBackoff:   getenvDuration("AI_RETRY_BACKOFF", 500*time.Millisecond),
			UserConcurrent: getenvInt("AI_USER_CONCURRENCY", 2),
			ApologyText:    getenv("AI_APOLOGY_TEXT", "Sorry, we couldn't answer that right now. A team member will follow up soon."),
			HistoryTurns:   getenvInt("AI_HISTORY_TURNS", 10),
		},
		Compiler: CompilerConfig{
			Mode:    compilerMode,
			Model:   getenv("COMPILER_MODEL", "gpt-4o-mini"),
			Timeout: getenvDuration("COMPILER_TIMEOUT", 10*time.Second),
		},
		Analytics: AnalyticsConfig{
			Timezone: getenv("ANALYTICS_TIMEZONE", "UTC"),
		},
		Features: FeatureFlags{
			LiveEvents:  getenvBool("FEATURE_LIVE_EVENTS", false),
			LLMCompiler: compilerMode == CompilerModeLLM,
		},
		PlansPath: strings.TrimSpace(getenv("PLANS_CONFIG_PATH", "")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeAIProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case AIProviderOpenAI:
		return AIProviderOpenAI
	case AIProviderGemini:
		return AIProviderGemini
	default:
		return AIProviderNone
	}
}

func normalizeCompilerMode(raw string) string {
	if strings.ToLower(strings.TrimSpace(raw)) == CompilerModeLLM {
		return CompilerModeLLM
	}
	return CompilerModeRules
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
