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
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	LLM    LLMConfig    `yaml:"llm" mapstructure:"llm"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LLMConfig holds model endpoint settings.
type LLMConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	UseExamples bool    `yaml:"use_examples" mapstructure:"use_examples"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst   int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// BatchConfig configures the extraction orchestrator.
type BatchConfig struct {
	Size             int `yaml:"size" mapstructure:"size"`
	MaxConcurrent    int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ClaimTimeoutMins int `yaml:"claim_timeout_mins" mapstructure:"claim_timeout_mins"`
}

// ExportConfig configures spreadsheet regeneration. Filenames are fixed and
// overwritten on every export.
type ExportConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	XLSXName string `yaml:"xlsx_name" mapstructure:"xlsx_name"`
	CSVName  string `yaml:"csv_name" mapstructure:"csv_name"`
}

// ServerConfig configures the read API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("AGENTICLEAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "agenticlead.db")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.timeout_secs", 30)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.use_examples", true)
	v.SetDefault("llm.rate_per_sec", 2.0)
	v.SetDefault("llm.rate_burst", 4)
	v.SetDefault("batch.size", 10)
	v.SetDefault("batch.max_concurrent", 3)
	v.SetDefault("batch.claim_timeout_mins", 15)
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.xlsx_name", "agenticlead_dados.xlsx")
	v.SetDefault("export.csv_name", "agenticlead_dados.csv")
	v.SetDefault("server.port", 8080)
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
