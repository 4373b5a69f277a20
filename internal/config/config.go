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
	Inputs InputsConfig `yaml:"inputs" mapstructure:"inputs"`
	Match  MatchConfig  `yaml:"match" mapstructure:"match"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the artifact store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// InputsConfig names the three source CSVs.
type InputsConfig struct {
	Medicare     string `yaml:"medicare" mapstructure:"medicare"`
	PECOS        string `yaml:"pecos" mapstructure:"pecos"`
	OpenPayments string `yaml:"open_payments" mapstructure:"open_payments"`
	Windows1252  bool   `yaml:"windows1252" mapstructure:"windows1252"`
}

// MatchConfig holds the matching and conflict policy knobs. The thresholds
// are policy decisions; the defaults below are the documented choices.
type MatchConfig struct {
	MinScore           float64 `yaml:"min_score" mapstructure:"min_score"`
	NameTolerance      float64 `yaml:"name_tolerance" mapstructure:"name_tolerance"`
	MaxMultiMatch      int     `yaml:"max_multi_match" mapstructure:"max_multi_match"`
	MaxNameMismatchPct float64 `yaml:"max_name_mismatch_pct" mapstructure:"max_name_mismatch_pct"`
	Workers            int     `yaml:"workers" mapstructure:"workers"`

	// MinRowRatio is the structural-failure floor: a run producing fewer
	// than this fraction of the prior run's entities aborts unpublished.
	MinRowRatio float64 `yaml:"min_row_ratio" mapstructure:"min_row_ratio"`
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
	v.SetEnvPrefix("PROVIDERXREF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "provider_xref.db")
	v.SetDefault("inputs.medicare", "data/medicare_providers.csv")
	v.SetDefault("inputs.pecos", "data/pecos_enrollment.csv")
	v.SetDefault("inputs.open_payments", "data/open_payments.csv")
	v.SetDefault("inputs.windows1252", false)
	v.SetDefault("match.min_score", 0.70)
	v.SetDefault("match.name_tolerance", 0.85)
	v.SetDefault("match.max_multi_match", 100)
	v.SetDefault("match.max_name_mismatch_pct", 5.0)
	v.SetDefault("match.workers", 8)
	v.SetDefault("match.min_row_ratio", 0.5)
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
