package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	domainerrors "github.com/procurewatch/risk-engine/internal/domain/errors"
	"github.com/procurewatch/risk-engine/internal/service/anomaly"
	"github.com/procurewatch/risk-engine/internal/service/assessment"
	"github.com/procurewatch/risk-engine/internal/service/baseline"
	"github.com/procurewatch/risk-engine/internal/service/indicators"
	"github.com/procurewatch/risk-engine/internal/service/scoring"
)

type Config struct {
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Models   ModelsConfig   `koanf:"models"`
	Metrics  MetricsConfig  `koanf:"metrics"`

	Indicators indicators.CatalogConfig `koanf:"indicators"`
	Baseline   baseline.Config          `koanf:"baseline"`
	Scoring    scoring.Config           `koanf:"scoring"`
	Anomaly    anomaly.Config           `koanf:"anomaly"`
	Assessment assessment.Config        `koanf:"assessment"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// ModelsConfig locates the fitted anomaly model artifacts. An empty path
// leaves the corresponding method undeployed; the ensemble redistributes its
// weight.
type ModelsConfig struct {
	IsolationForestPath string `koanf:"isolation_forest_path"`
	AutoencoderDir      string `koanf:"autoencoder_dir"`
	LOFPath             string `koanf:"lof_path"`
	OneClassSVMPath     string `koanf:"one_class_svm_path"`
	// FeatureNames maps feature-vector indices to stable names, in the order
	// the ingest pipeline emits them.
	FeatureNames []string `koanf:"feature_names"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Indicators: indicators.DefaultCatalogConfig(),
		Baseline:   baseline.DefaultConfig(),
		Scoring:    scoring.DefaultConfig(),
		Anomaly:    anomaly.DefaultConfig(),
		Assessment: assessment.DefaultConfig(),
	}
}

// Load layers configuration: defaults, then an optional YAML file, then
// RISK_-prefixed environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("RISK_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "RISK_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot start with. A bad weight
// table or threshold override is a deployment bug and fails fast.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return domainerrors.NewConfigurationError("DATABASE_URL_MISSING",
			"database.url is required")
	}
	if err := c.Anomaly.Validate(); err != nil {
		return err
	}
	for name, s := range c.Indicators.Overrides {
		if s.Weight < 0 {
			return domainerrors.NewConfigurationError("NEGATIVE_INDICATOR_WEIGHT",
				fmt.Sprintf("indicator %q override has negative weight %v", name, s.Weight))
		}
		if s.BaseThreshold < 0 || s.BaseThreshold > 100 {
			return domainerrors.NewConfigurationError("THRESHOLD_OUT_OF_RANGE",
				fmt.Sprintf("indicator %q override threshold %v outside 0-100", name, s.BaseThreshold))
		}
	}
	if c.Assessment.BatchWorkers < 0 {
		return domainerrors.NewConfigurationError("NEGATIVE_BATCH_WORKERS",
			"assessment.batch_workers must not be negative")
	}
	return nil
}
