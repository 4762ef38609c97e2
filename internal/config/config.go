package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	AuthRequired   bool          `mapstructure:"auth_required"`
}

// ProvidersConfig groups per-provider credentials and endpoints.
type ProvidersConfig struct {
	DocumentAI DocumentAIConfig `mapstructure:"documentai"`
	Azure      AzureConfig      `mapstructure:"azure"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	// MaxCallsPerMinute bounds outbound calls per provider.
	MaxCallsPerMinute int `mapstructure:"max_calls_per_minute"`
}

// DocumentAIConfig configures the Google Document AI adapter.
type DocumentAIConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ProcessorID string `mapstructure:"processor_id"`
	AccessToken string `mapstructure:"access_token"`
}

// AzureConfig configures the Azure Document Intelligence adapter.
type AzureConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	APIVersion string `mapstructure:"api_version"`
}

// GeminiConfig configures the normalizer model and the fallback adapter.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
	PromptCaching   bool    `mapstructure:"prompt_caching"`
}

// BudgetConfig holds spend-control settings.
type BudgetConfig struct {
	MonthlyLimitUSD float64 `mapstructure:"monthly_limit_usd"`
	AlertThreshold  float64 `mapstructure:"alert_threshold"`
	DBPath          string  `mapstructure:"db_path"`
}

// CacheConfig holds result-cache settings.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// JobsConfig holds worker-pool and job-store settings.
type JobsConfig struct {
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	ProcessTimeout    time.Duration `mapstructure:"process_timeout"`
	SyncFallback      bool          `mapstructure:"sync_fallback"`
	DBPath            string        `mapstructure:"db_path"`
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// Load reads configuration from an optional file plus RESUME_PARSER_* env vars.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.max_upload_bytes", int64(10_000_000))
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.auth_required", false)

	v.SetDefault("providers.documentai.endpoint", "https://us-documentai.googleapis.com")
	v.SetDefault("providers.azure.api_version", "2023-07-31")
	v.SetDefault("providers.gemini.model", "gemini-2.5-flash")
	v.SetDefault("providers.gemini.temperature", 0.1)
	v.SetDefault("providers.gemini.max_output_tokens", 8192)
	v.SetDefault("providers.gemini.prompt_caching", false)
	v.SetDefault("providers.max_calls_per_minute", 60)

	v.SetDefault("budget.monthly_limit_usd", 40.0)
	v.SetDefault("budget.alert_threshold", 0.8)
	v.SetDefault("budget.db_path", "resume-parser.db")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 4*time.Hour)
	v.SetDefault("cache.max_entries", 1000)

	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("jobs.process_timeout", 3*time.Minute)
	v.SetDefault("jobs.sync_fallback", true)
	v.SetDefault("jobs.db_path", "resume-parser.db")
	v.SetDefault("jobs.stream_idle_timeout", 5*time.Minute)

	v.SetEnvPrefix("RESUME_PARSER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Providers.Gemini.APIKey == "" {
		return errors.New("providers.gemini.api_key is required (Gemini is the fallback provider)")
	}
	if c.Budget.MonthlyLimitUSD < 0 {
		return errors.Newf("budget.monthly_limit_usd cannot be negative: %.2f", c.Budget.MonthlyLimitUSD)
	}
	if c.Budget.AlertThreshold <= 0 || c.Budget.AlertThreshold > 1 {
		return errors.Newf("budget.alert_threshold must be in (0,1]: %.2f", c.Budget.AlertThreshold)
	}
	return nil
}

// ConfiguredProviders lists the specialized providers with working credentials.
// Gemini is always present as the fallback.
func (c *Config) ConfiguredProviders() []string {
	out := []string{"gemini"}
	if c.Providers.DocumentAI.ProcessorID != "" && c.Providers.DocumentAI.AccessToken != "" {
		out = append(out, "documentai")
	}
	if c.Providers.Azure.Endpoint != "" && c.Providers.Azure.APIKey != "" {
		out = append(out, "azure")
	}
	return out
}
