package config

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Refinement RefinementConfig `yaml:"refinement" mapstructure:"refinement"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Assemble   AssembleConfig   `yaml:"assemble" mapstructure:"assemble"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Ledger     LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the ledger and sink database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres memory"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gte=0"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
}

// ExtractionConfig configures the OCR/entity extraction service.
type ExtractionConfig struct {
	Provider   string           `yaml:"provider" mapstructure:"provider" validate:"oneof=documentai text"`
	DocumentAI DocumentAIConfig `yaml:"documentai" mapstructure:"documentai"`
	Text       TextConfig       `yaml:"text" mapstructure:"text"`
	RateLimit  float64          `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	Burst      int              `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

// DocumentAIConfig holds the Document AI processor coordinates.
type DocumentAIConfig struct {
	ProjectID   string `yaml:"project_id" mapstructure:"project_id"`
	Location    string `yaml:"location" mapstructure:"location"`
	ProcessorID string `yaml:"processor_id" mapstructure:"processor_id"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
}

// TextConfig configures text-layer extraction plus label scanning.
type TextConfig struct {
	Engine        string `yaml:"engine" mapstructure:"engine" validate:"oneof=pdftotext mistral native"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// RefinementConfig configures the generative refinement pass.
type RefinementConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider" validate:"oneof=anthropic openai none"`
	Model         string  `yaml:"model" mapstructure:"model"`
	MaxTokens     int64   `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gt=0"`
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature" validate:"gte=0,lte=2"`
	AnthropicKey  string  `yaml:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIKey     string  `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	OpenAIBaseURL string  `yaml:"openai_base_url" mapstructure:"openai_base_url"`
}

// PricingConfig overrides per-model refinement pricing.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models" validate:"dive"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input" validate:"gte=0"`
	Output float64 `yaml:"output" mapstructure:"output" validate:"gte=0"`
}

// NormalizeConfig configures field normalization.
type NormalizeConfig struct {
	// Tolerance bounds subtotal+tax=total and quantity*price=line_total
	// checks, as a decimal string. A difference of Tolerance or more is
	// flagged inconsistent.
	Tolerance   string   `yaml:"tolerance" mapstructure:"tolerance" validate:"required,numeric"`
	DateFormats []string `yaml:"date_formats" mapstructure:"date_formats" validate:"min=1"`
}

// AssembleConfig bounds record assembly.
type AssembleConfig struct {
	MaxLineItems int `yaml:"max_line_items" mapstructure:"max_line_items" validate:"gt=0"`
}

// RetryConfig configures backoff for external service calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

// CircuitConfig configures per-service circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LedgerConfig configures the idempotency ledger.
type LedgerConfig struct {
	// StaleAfterSecs is the age after which a pending attempt is treated as
	// abandoned and marked failed by the next attempt for the same content.
	StaleAfterSecs int `yaml:"stale_after_secs" mapstructure:"stale_after_secs" validate:"gte=0"`
}

// PipelineConfig configures a processing attempt.
type PipelineConfig struct {
	ProcessingTimeoutSecs int    `yaml:"processing_timeout_secs" mapstructure:"processing_timeout_secs" validate:"gt=0"`
	DefaultMode           string `yaml:"default_mode" mapstructure:"default_mode" validate:"oneof=production adhoc"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
}

// StorageConfig maps object-store events onto local files.
type StorageConfig struct {
	Root             string `yaml:"root" mapstructure:"root"`
	ProductionBucket string `yaml:"production_bucket" mapstructure:"production_bucket"`
	AdhocBucket      string `yaml:"adhoc_bucket" mapstructure:"adhoc_bucket"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port" validate:"gt=0,lt=65536"`
}

// MonitoringConfig configures the ledger health checker run by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold" validate:"gte=0,lte=1"`
	// MinFinished is how many finished attempts the failure rate needs
	// before it can alert.
	MinFinished         int `yaml:"min_finished" mapstructure:"min_finished" validate:"gte=0"`
	CheckIntervalSecs   int `yaml:"check_interval_secs" mapstructure:"check_interval_secs" validate:"gte=0"`
	LookbackWindowHours int `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultDateFormats lists accepted invoice date layouts in priority order.
var DefaultDateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	"01/02/06",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
	"02-Jan-2006",
	"2006/01/02",
}

// Load reads ./config.yaml, if present, and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and the environment. An empty path
// falls back to an optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("INVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "invoices.db")
	v.SetDefault("extraction.provider", "documentai")
	v.SetDefault("extraction.documentai.location", "us")
	v.SetDefault("extraction.documentai.project_id", "")
	v.SetDefault("extraction.documentai.processor_id", "")
	v.SetDefault("extraction.documentai.endpoint", "")
	v.SetDefault("extraction.documentai.access_token", "")
	v.SetDefault("extraction.text.mistral_api_key", "")
	v.SetDefault("extraction.text.engine", "pdftotext")
	v.SetDefault("extraction.text.pdftotext_path", "pdftotext")
	v.SetDefault("extraction.text.mistral_model", "mistral-ocr-latest")
	v.SetDefault("extraction.rate_limit", 2.0)
	v.SetDefault("extraction.burst", 2)
	v.SetDefault("refinement.provider", "anthropic")
	v.SetDefault("refinement.model", "claude-haiku-4-5-20251001")
	v.SetDefault("refinement.max_tokens", 2048)
	v.SetDefault("refinement.temperature", 0.0)
	v.SetDefault("refinement.anthropic_api_key", "")
	v.SetDefault("refinement.openai_api_key", "")
	v.SetDefault("refinement.openai_base_url", "")
	v.SetDefault("normalize.tolerance", "0.01")
	v.SetDefault("normalize.date_formats", DefaultDateFormats)
	v.SetDefault("assemble.max_line_items", 500)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("ledger.stale_after_secs", 600)
	v.SetDefault("pipeline.processing_timeout_secs", 300)
	v.SetDefault("pipeline.default_mode", "adhoc")
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("storage.root", "")
	v.SetDefault("storage.production_bucket", "")
	v.SetDefault("storage.adhoc_bucket", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.min_finished", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks struct constraints plus the requirements of the given
// command: "process" needs a working extractor and refiner, "store" only a
// database.
func (c *Config) Validate(component string) error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return eris.Errorf("config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return eris.Wrap(err, "config: validate")
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for postgres (INVOICE_STORE_DATABASE_URL)")
	}

	if component != "process" {
		return nil
	}

	switch c.Extraction.Provider {
	case "documentai":
		d := c.Extraction.DocumentAI
		if d.ProjectID == "" || d.Location == "" || d.ProcessorID == "" {
			return eris.New("config: documentai requires project_id, location and processor_id")
		}
	case "text":
		if c.Extraction.Text.Engine == "mistral" && c.Extraction.Text.MistralKey == "" {
			return eris.New("config: mistral engine requires extraction.text.mistral_api_key")
		}
	}

	switch c.Refinement.Provider {
	case "anthropic":
		if c.Refinement.AnthropicKey == "" {
			return eris.New("config: anthropic refinement requires refinement.anthropic_api_key (set provider to none to disable)")
		}
	case "openai":
		if c.Refinement.OpenAIKey == "" {
			return eris.New("config: openai refinement requires refinement.openai_api_key (set provider to none to disable)")
		}
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
