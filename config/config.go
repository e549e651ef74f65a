// Package config holds the explicit runtime configuration for the alert
// relay. Everything the process reads from its environment is resolved
// here once at startup and passed by reference into the constructors
// that need it.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// StoreBackend selects the row store implementation.
type StoreBackend string

const (
	// BackendClickHouse is the production analytics warehouse backend.
	BackendClickHouse StoreBackend = "clickhouse"
	// BackendSQLite is the local development and test backend.
	BackendSQLite StoreBackend = "sqlite"
)

// Config holds all configuration for one relay process.
type Config struct {
	// Environment tags synthesized alerts (ENVIRONMENT field).
	Environment string `mapstructure:"environment" validate:"required"`

	// ResultsSchema is the warehouse schema/database holding the alerts
	// table. Identifier-validated before use in any statement.
	ResultsSchema string `mapstructure:"results_schema" validate:"required,alphanumunderscore"`

	// AlertsTable is the results table name.
	AlertsTable string `mapstructure:"alerts_table" validate:"required,alphanumunderscore"`

	// PageLimit bounds how many pending alerts one run fetches.
	PageLimit int `mapstructure:"page_limit" validate:"gt=0"`

	// CloudWatchMetrics enables the once-per-run completion metric.
	CloudWatchMetrics bool `mapstructure:"cloudwatch_metrics"`

	// MetricsNamespace is the CloudWatch namespace for the run metric.
	MetricsNamespace string `mapstructure:"metrics_namespace"`

	// PushgatewayURL, when set, receives the prometheus run counters at
	// the end of each run. A scheduled one-shot process has no scrape
	// window of its own.
	PushgatewayURL string `mapstructure:"metrics_pushgateway"`

	Store struct {
		Backend StoreBackend `mapstructure:"backend" validate:"oneof=clickhouse sqlite"`

		ClickHouse struct {
			Addr        string `mapstructure:"addr"`
			Username    string `mapstructure:"username"`
			Password    string `mapstructure:"password"`
			TLS         bool   `mapstructure:"tls"`
			MaxPoolSize int    `mapstructure:"max_pool_size" validate:"gt=0"`
		} `mapstructure:"clickhouse"`

		SQLite struct {
			Path string `mapstructure:"path"`
		} `mapstructure:"sqlite"`
	} `mapstructure:"store"`

	Jira struct {
		BaseURL   string `mapstructure:"base_url"`
		Project   string `mapstructure:"project"`
		IssueType string `mapstructure:"issue_type"`
		// Username and Password are filled by LoadSecrets, never from
		// the config file.
		Username string
		Password string
	} `mapstructure:"jira"`

	Secrets struct {
		Provider string `mapstructure:"provider" validate:"omitempty,oneof=env vault aws"`
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`
}

// setDefaults documents every configurable default in one place.
func setDefaults() {
	viper.SetDefault("environment", "AlertRelay")
	viper.SetDefault("results_schema", "results")
	viper.SetDefault("alerts_table", "alerts")
	viper.SetDefault("page_limit", 100)
	viper.SetDefault("cloudwatch_metrics", false)
	viper.SetDefault("metrics_namespace", "AlertRelay")
	viper.SetDefault("metrics_pushgateway", "")

	viper.SetDefault("store.backend", string(BackendClickHouse))
	viper.SetDefault("store.clickhouse.addr", "localhost:9000")
	viper.SetDefault("store.clickhouse.username", "default")
	viper.SetDefault("store.clickhouse.password", "")
	viper.SetDefault("store.clickhouse.tls", false)
	viper.SetDefault("store.clickhouse.max_pool_size", 10)
	viper.SetDefault("store.sqlite.path", "./data/alertrelay.db")

	viper.SetDefault("jira.base_url", "")
	viper.SetDefault("jira.project", "SA")
	viper.SetDefault("jira.issue_type", "Story")

	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.vault.address", "")
	viper.SetDefault("secrets.vault.token", "")
	viper.SetDefault("secrets.vault.path", "")
	viper.SetDefault("secrets.aws.region", "us-west-2")
	viper.SetDefault("secrets.aws.secret_id", "")
}

// Load reads configuration from the optional config file and the
// ALERTRELAY_* environment, applies defaults and validates the result.
// An empty path searches the working directory for alertrelay.yaml.
func Load(path string) (*Config, error) {
	viper.Reset()
	setDefaults()

	viper.SetEnvPrefix("ALERTRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		viper.SetConfigName("alertrelay")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		// A missing config file is fine; defaults plus env cover it
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration for structural errors.
func (c *Config) Validate() error {
	validate := validator.New()

	// Identifier fields end up inside SQL statements after this check,
	// so the rule mirrors what the storage layer will accept.
	if err := validate.RegisterValidation("alphanumunderscore", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" || len(s) > 64 {
			return false
		}
		for _, r := range s {
			if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
				return false
			}
		}
		return true
	}); err != nil {
		return fmt.Errorf("failed to register config validator: %w", err)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}
