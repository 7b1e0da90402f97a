package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Segment selectors for the primary-cohort first-pay extraction.
const (
	SegmentAll    = "all"
	SegmentParent = "parent"
)

// Offset-metric formula modes.
const (
	OffsetModeRetention = "retention"
	OffsetModeFormula   = "formula"
)

// Withdrawal approximation modes.
const (
	WithdrawModeScale = "scale"
	WithdrawModeZero  = "zero"
)

// Config is the complete application configuration. Tables are immutable
// after Load; components receive them explicitly at construction rather
// than reading ambient globals, so tests can substitute their own.
type Config struct {
	Run     RunConfig     `yaml:"run" envconfig:"RUN"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Tables  Tables        `yaml:"tables"`
}

// RunConfig selects the target date and the business-policy switches. The
// two formula modes are deliberate approximations — both variants are
// implemented and neither is assumed correct.
type RunConfig struct {
	TargetDate             string `yaml:"target_date" envconfig:"TARGET_DATE" default:"latest"`
	PrimaryFirstPaySegment string `yaml:"primary_firstpay_segment" envconfig:"PRIMARY_FIRSTPAY_SEGMENT" default:"all" validate:"oneof=all parent"`
	OffsetMode             string `yaml:"offset_mode" envconfig:"OFFSET_MODE" default:"formula" validate:"oneof=retention formula"`
	WithdrawMode           string `yaml:"withdraw_mode" envconfig:"WITHDRAW_MODE" default:"scale" validate:"oneof=scale zero"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
}

// PathsConfig contains file system paths configuration.
type PathsConfig struct {
	InputDir   string `yaml:"input_dir" envconfig:"INPUT_DIR" default:"." validate:"required"`
	OutputFile string `yaml:"output_file" envconfig:"OUTPUT_FILE" default:"daily_agent_report.xlsx" validate:"required"`
	ReportDir  string `yaml:"report_dir" envconfig:"REPORT_DIR" default:"."`
}

// Load builds configuration from environment variables (prefix AGENTREPORT)
// layered over an optional YAML file. Lookup tables missing from both fall
// back to the shipped defaults.
func Load() (*Config, error) {
	cfg := Default()

	configFile := configFilePath()
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("AGENTREPORT", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.Tables.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration with struct tags plus table-level rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Tables.DefaultExchangeRate <= 0 {
		return fmt.Errorf("default exchange rate must be positive, got %v", c.Tables.DefaultExchangeRate)
	}
	for region, rate := range c.Tables.ExchangeRates {
		if rate <= 0 {
			return fmt.Errorf("exchange rate for region %q must be positive, got %v", region, rate)
		}
	}
	if len(c.Tables.FinalColumns) == 0 {
		return fmt.Errorf("final column order is empty")
	}
	return nil
}

// configFilePath returns the first config file found in common locations.
func configFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the shipped configuration: the original operational alias
// tables, exchange rates, platform map, and output schema.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			TargetDate:             "latest",
			PrimaryFirstPaySegment: SegmentAll,
			OffsetMode:             OffsetModeFormula,
			WithdrawMode:           WithdrawModeScale,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			InputDir:   ".",
			OutputFile: "daily_agent_report.xlsx",
			ReportDir:  ".",
		},
		Tables: defaultTables(),
	}
}
