package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Variant identifies one of the three server builds.
type Variant string

const (
	Relay   Variant = "relay"
	Socket  Variant = "socket"
	Synapse Variant = "synapse"
)

// Profile holds the compiled-in defaults of a variant.
type Profile struct {
	Port          string
	Model         string
	StaticFile    string
	UseTemplate   bool
	Reshape       bool
	RequireAPIKey bool
}

var profiles = map[Variant]Profile{
	Relay: {
		Port:       "8080",
		Model:      "gpt-4o-mini",
		StaticFile: "index.html",
	},
	Socket: {
		Port:       "8080",
		Model:      "gpt-4o-mini",
		StaticFile: "index.html",
	},
	Synapse: {
		Port:          "8081",
		Model:         "gpt-5.1",
		StaticFile:    "Public/index_2.html",
		UseTemplate:   true,
		Reshape:       true,
		RequireAPIKey: true,
	},
}

// ProfileFor returns the defaults for v. Unknown variants get the relay profile.
func ProfileFor(v Variant) Profile {
	if p, ok := profiles[v]; ok {
		return p
	}
	return profiles[Relay]
}

type Config struct {
	Variant Variant

	// Server
	Port            string
	Env             string
	StaticFile      string
	ReadBufferBytes int
	MaxRequestBytes int
	ConnTimeout     time.Duration

	// Upstream LLM
	Provider        string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	GeminiModel     string
	Model           string
	UpstreamTimeout time.Duration
	UpstreamRetries int

	// Chat proxy
	UseTemplate     bool
	TemplateFile    string
	Reshape         bool
	MaxMessageRunes int

	// Optional collaborators
	DatabaseURL        string
	MigrationsDir      string // empty uses the migrations compiled into the binary
	RedisURL           string
	AuditWorkers       int
	AuditRetentionDays int
	AuditPruneSchedule string
	MetricsAddr        string
}

// Load reads the environment (and .env if present) on top of the variant profile.
// For variants that require it, a missing key for the selected provider panics.
func Load(v Variant) *Config {
	// Load .env file if it exists
	godotenv.Load()

	p := ProfileFor(v)

	cfg := &Config{
		Variant:         v,
		Port:            getEnvOrDefault("PORT", p.Port),
		Env:             getEnvOrDefault("ENV", "development"),
		StaticFile:      getEnvOrDefault("STATIC_FILE", p.StaticFile),
		ReadBufferBytes: getEnvAsIntOrDefault("READ_BUFFER_BYTES", 4096),
		MaxRequestBytes: getEnvAsIntOrDefault("MAX_REQUEST_BYTES", 64*1024),

		Provider:        getEnvOrDefault("LLM_PROVIDER", "openai"),
		OpenAIBaseURL:   getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiAPIKey:    getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		Model:           getEnvOrDefault("LLM_MODEL", p.Model),
		UpstreamTimeout: getEnvAsDurationOrDefault("UPSTREAM_TIMEOUT", 60*time.Second),
		UpstreamRetries: getEnvAsIntOrDefault("UPSTREAM_RETRIES", 1),

		UseTemplate:     getEnvAsBoolOrDefault("USE_TEMPLATE", p.UseTemplate),
		TemplateFile:    getEnvOrDefault("PROMPT_TEMPLATE_FILE", ""),
		Reshape:         getEnvAsBoolOrDefault("RESHAPE_RESPONSE", p.Reshape),
		MaxMessageRunes: getEnvAsIntOrDefault("MAX_MESSAGE_RUNES", 4000),

		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", ""),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		AuditWorkers:       getEnvAsIntOrDefault("AUDIT_WORKERS", 2),
		AuditRetentionDays: getEnvAsIntOrDefault("AUDIT_RETENTION_DAYS", 30),
		AuditPruneSchedule: getEnvOrDefault("AUDIT_PRUNE_SCHEDULE", "0 3 * * *"),
		MetricsAddr:        getEnvOrDefault("METRICS_ADDR", ""),
	}

	cfg.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
	if p.RequireAPIKey {
		key := mustGetEnv(cfg.APIKeyVar())
		if cfg.Provider == "gemini" {
			cfg.GeminiAPIKey = key
		} else {
			cfg.OpenAIAPIKey = key
		}
	}

	if cfg.UpstreamRetries < 0 {
		cfg.UpstreamRetries = 0
	}
	cfg.ConnTimeout = getEnvAsDurationOrDefault("CONN_TIMEOUT", defaultConnTimeout(cfg.UpstreamTimeout, cfg.UpstreamRetries))
	if cfg.MaxRequestBytes < cfg.ReadBufferBytes {
		cfg.MaxRequestBytes = cfg.ReadBufferBytes
	}

	return cfg
}

// Addr is the listen address, bound to all interfaces.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

// APIKeyVar names the environment variable holding the selected provider's key.
func (c *Config) APIKeyVar() string {
	if c.Provider == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == "gemini" {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// UpstreamModel returns the model name of the selected provider.
func (c *Config) UpstreamModel() string {
	if c.Provider == "gemini" {
		return c.GeminiModel
	}
	return c.Model
}

// defaultConnTimeout covers every upstream attempt and the pauses between
// them, with slack for the client side of the exchange.
func defaultConnTimeout(upstream time.Duration, retries int) time.Duration {
	if upstream <= 0 {
		return 2 * time.Minute
	}
	return upstream*time.Duration(retries+1) + time.Duration(retries)*time.Second + 30*time.Second
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// Accepts Go durations ("30s") or a bare number of seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
