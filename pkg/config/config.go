// Package config loads webtest settings from defaults, an optional YAML
// file, a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete runtime configuration.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Report       ReportConfig       `mapstructure:"report" yaml:"report"`
	Security     SecurityConfig     `mapstructure:"security" yaml:"security"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Trace        TraceConfig        `mapstructure:"trace" yaml:"trace"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider" yaml:"provider"` // openai, azure, anthropic, ollama
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	Model          string        `mapstructure:"model" yaml:"model"`
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	CachePath      string        `mapstructure:"cache_path" yaml:"cache_path"` // empty disables the completion cache
	Temperature    float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Retries        int           `mapstructure:"retries" yaml:"retries"`
	CacheSeed      int64         `mapstructure:"cache_seed" yaml:"cache_seed"`
}

// ConversationConfig bounds a conversation.
type ConversationConfig struct {
	MaxConsecutiveEmpty int `mapstructure:"max_consecutive_empty" yaml:"max_consecutive_empty"`
	MaxTotalTokens      int `mapstructure:"max_total_tokens" yaml:"max_total_tokens"` // 0 is unbounded
}

// OrchestratorConfig bounds the role loop.
type OrchestratorConfig struct {
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`
}

// BrowserConfig configures the Playwright session.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	SlowMo         time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ActionDelay    time.Duration `mapstructure:"action_delay" yaml:"action_delay"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// ReportConfig sets where run directories are created.
type ReportConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SecurityConfig restricts what the reviewer approves.
type SecurityConfig struct {
	AllowedURLs []string `mapstructure:"allowed_urls" yaml:"allowed_urls"`
	DeniedURLs  []string `mapstructure:"denied_urls" yaml:"denied_urls"`
	// LLMReview asks the model for a second opinion on plans that pass the
	// static policy.
	LLMReview bool `mapstructure:"llm_review" yaml:"llm_review"`
}

// LoggingConfig controls the log level: quiet, normal, verbose, debug.
type LoggingConfig struct {
	Verbosity string `mapstructure:"verbosity" yaml:"verbosity"`
}

// TraceConfig enables OpenTelemetry export. An empty endpoint exports to
// stdout.
type TraceConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
}

// Providers lists the supported LLM providers.
var Providers = []string{"openai", "azure", "anthropic", "ollama"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.request_timeout", "600s")
	v.SetDefault("llm.retries", 2)
	v.SetDefault("llm.cache_seed", 42)
	v.SetDefault("llm.cache_path", defaultCachePath())

	v.SetDefault("conversation.max_consecutive_empty", 3)
	v.SetDefault("conversation.max_total_tokens", 0)

	v.SetDefault("orchestrator.max_rounds", 15)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", "500ms")
	v.SetDefault("browser.action_timeout", "10s")
	v.SetDefault("browser.action_delay", "1s")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)

	v.SetDefault("report.dir", "reports")

	v.SetDefault("security.allowed_urls", []string{})
	v.SetDefault("security.denied_urls", []string{})
	v.SetDefault("security.llm_review", true)

	v.SetDefault("logging.verbosity", "normal")

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.endpoint", "")
}

func defaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".webtest", "cache.db")
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error. A .env file in the working directory is applied
// first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}

// Validate checks the configuration and fills in derived defaults.
func (c *Config) Validate() error {
	provider := strings.ToLower(c.LLM.Provider)
	if !isProvider(provider) {
		return fmt.Errorf("invalid llm provider: %s (must be one of %s)", c.LLM.Provider, strings.Join(Providers, ", "))
	}
	c.LLM.Provider = provider

	if c.LLM.APIKey == "" && provider != "ollama" {
		return fmt.Errorf("llm api key is required for provider %s (set LLM_API_KEY)", provider)
	}
	if provider == "azure" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base_url is required for provider azure")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm max_tokens cannot be negative")
	}
	if c.LLM.RequestTimeout < 0 {
		return fmt.Errorf("llm request_timeout cannot be negative")
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("llm retries cannot be negative")
	}

	if c.Conversation.MaxConsecutiveEmpty < 1 {
		return fmt.Errorf("conversation max_consecutive_empty must be at least 1")
	}
	if c.Conversation.MaxTotalTokens < 0 {
		return fmt.Errorf("conversation max_total_tokens cannot be negative")
	}
	if c.Orchestrator.MaxRounds < 1 {
		return fmt.Errorf("orchestrator max_rounds must be at least 1")
	}

	if c.Browser.ActionTimeout <= 0 {
		return fmt.Errorf("browser action_timeout must be positive")
	}
	if c.Browser.SlowMo < 0 || c.Browser.ActionDelay < 0 {
		return fmt.Errorf("browser delays cannot be negative")
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive")
	}

	if c.Report.Dir == "" {
		return fmt.Errorf("report dir is required")
	}

	switch strings.ToLower(c.Logging.Verbosity) {
	case "":
		c.Logging.Verbosity = "normal"
	case "quiet", "normal", "verbose", "debug":
	default:
		return fmt.Errorf("invalid logging verbosity: %s (must be quiet, normal, verbose or debug)", c.Logging.Verbosity)
	}
	return nil
}

func isProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}
