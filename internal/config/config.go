package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Chroma     ChromaConfig     `yaml:"chroma" mapstructure:"chroma"`
	DealFeed   DealFeedConfig   `yaml:"dealfeed" mapstructure:"dealfeed"`
	Specialist SpecialistConfig `yaml:"specialist" mapstructure:"specialist"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Pushover   PushoverConfig   `yaml:"pushover" mapstructure:"pushover"`
	Telegram   TelegramConfig   `yaml:"telegram" mapstructure:"telegram"`
	MCP        MCPConfig        `yaml:"mcp" mapstructure:"mcp"`
	Planner    PlannerConfig    `yaml:"planner" mapstructure:"planner"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the planner model.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	PlannerModel string `yaml:"planner_model" mapstructure:"planner_model"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds OpenAI API settings for the valuation pipeline.
type OpenAIConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	PreprocessModel string `yaml:"preprocess_model" mapstructure:"preprocess_model"`
	PricingModel    string `yaml:"pricing_model" mapstructure:"pricing_model"`
	EmbeddingModel  string `yaml:"embedding_model" mapstructure:"embedding_model"`
}

// ChromaConfig holds vector index settings.
type ChromaConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Collection string `yaml:"collection" mapstructure:"collection"`
	Neighbors  int    `yaml:"neighbors" mapstructure:"neighbors"`
}

// DealFeedConfig holds deal feed scanner settings.
type DealFeedConfig struct {
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// SpecialistConfig holds the external specialist estimator settings.
type SpecialistConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotifyConfig selects the notification transport.
type NotifyConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"` // pushover, telegram, none
}

// PushoverConfig holds Pushover API credentials.
type PushoverConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	User  string `yaml:"user" mapstructure:"user"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	ChatID int64  `yaml:"chat_id" mapstructure:"chat_id"`
}

// MCPConfig configures the sandboxed file-access sidecar.
type MCPConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Command     string `yaml:"command" mapstructure:"command"`
	SandboxDir  string `yaml:"sandbox_dir" mapstructure:"sandbox_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PlannerConfig configures the planning agent loop.
type PlannerConfig struct {
	MaxTurns int `yaml:"max_turns" mapstructure:"max_turns"`
}

// PricingConfig holds per-provider pricing overrides (USD per million tokens).
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
	Embedding map[string]float64      `yaml:"embedding" mapstructure:"embedding"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures background health checks and alerting.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	DroughtMinHunts      int     `yaml:"drought_min_hunts" mapstructure:"drought_min_hunts"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALHOUND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dealhound.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.planner_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.preprocess_model", "gpt-4o-mini")
	v.SetDefault("openai.pricing_model", "gpt-4o")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("chroma.base_url", "http://localhost:8000")
	v.SetDefault("chroma.collection", "products")
	v.SetDefault("chroma.neighbors", 5)
	v.SetDefault("dealfeed.base_url", "http://localhost:8100")
	v.SetDefault("dealfeed.rps", 1.0)
	v.SetDefault("specialist.base_url", "http://localhost:8200")
	v.SetDefault("notify.transport", "pushover")
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.command", "npx")
	v.SetDefault("mcp.sandbox_dir", "./sandbox")
	v.SetDefault("mcp.timeout_secs", 60)
	v.SetDefault("planner.max_turns", 16)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.drought_min_hunts", 5)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required settings are present for the given mode
// (hunt, serve, seed). All errors are reported at once.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireValuation := func() {
		if c.OpenAI.Key == "" {
			missing = append(missing, "openai.key is required")
		}
		if c.Chroma.Collection == "" {
			missing = append(missing, "chroma.collection is required")
		}
	}

	requireHunt := func() {
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		requireValuation()
		switch c.Notify.Transport {
		case "pushover":
			if c.Pushover.Token == "" || c.Pushover.User == "" {
				missing = append(missing, "pushover.token and pushover.user are required for the pushover transport")
			}
		case "telegram":
			if c.Telegram.Token == "" || c.Telegram.ChatID == 0 {
				missing = append(missing, "telegram.token and telegram.chat_id are required for the telegram transport")
			}
		case "none":
		default:
			missing = append(missing, "notify.transport must be pushover, telegram, or none")
		}
		if c.Planner.MaxTurns < 1 || c.Planner.MaxTurns > 64 {
			missing = append(missing, "planner.max_turns must be between 1 and 64")
		}
		if c.Chroma.Neighbors < 1 || c.Chroma.Neighbors > 20 {
			missing = append(missing, "chroma.neighbors must be between 1 and 20")
		}
	}

	switch mode {
	case "hunt":
		requireHunt()
	case "serve":
		requireHunt()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "seed":
		requireValuation()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
