// Package config loads and validates the outstation engine's
// configuration: defaults layered under a YAML file, itself overridable by
// environment variables, following the same precedence order the teacher
// repo's configuration package uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix is the environment variable prefix this engine uses for config
// overrides, e.g. DNP3_LOGGING_LEVEL.
const envPrefix = "DNP3"

// Config is the top-level configuration for the outstation engine.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Link       LinkConfig       `mapstructure:"link" yaml:"link"`
	Outstation OutstationConfig `mapstructure:"outstation" yaml:"outstation"`
	Events     EventsConfig     `mapstructure:"events" yaml:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Historian  HistorianConfig  `mapstructure:"historian" yaml:"historian"`
	Control    ControlConfig    `mapstructure:"control" yaml:"control"`

	// ShutdownTimeout bounds how long `run` waits for the outstation's
	// executor and link listener to drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// LinkConfig configures the demo TCP lower layer.
type LinkConfig struct {
	// ListenAddress is host:port the demo TCP listener binds.
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`
}

// OutstationConfig mirrors the subset of outstation.Config that is
// meaningfully operator-tunable; the rest (select timeout, confirm
// timeouts, fragment sizes) are exposed directly since they are the knobs
// a real deployment adjusts per master's capabilities.
type OutstationConfig struct {
	SelectTimeout       time.Duration `mapstructure:"select_timeout" validate:"gt=0" yaml:"select_timeout"`
	SolConfirmTimeout   time.Duration `mapstructure:"sol_confirm_timeout" validate:"gt=0" yaml:"sol_confirm_timeout"`
	UnsolConfirmTimeout time.Duration `mapstructure:"unsol_confirm_timeout" validate:"gt=0" yaml:"unsol_confirm_timeout"`
	UnsolRetryTimeout   time.Duration `mapstructure:"unsol_retry_timeout" validate:"gt=0" yaml:"unsol_retry_timeout"`
	MaxTxFragSize       int           `mapstructure:"max_tx_frag_size" validate:"gt=0" yaml:"max_tx_frag_size"`
	MaxRxFragSize       int           `mapstructure:"max_rx_frag_size" validate:"gt=0" yaml:"max_rx_frag_size"`
	AllowUnsolicited    bool          `mapstructure:"allow_unsolicited" yaml:"allow_unsolicited"`
	IgnoreRepeatReads   bool          `mapstructure:"ignore_repeat_reads" yaml:"ignore_repeat_reads"`
}

// EventsConfig is the per-type event buffer capacity, mirroring
// events.EventBufferConfig field for field so it can be decoded straight
// from YAML without the outstation packages depending on viper.
type EventsConfig struct {
	MaxBinary             int `mapstructure:"max_binary" validate:"gte=0" yaml:"max_binary"`
	MaxDoubleBitBinary    int `mapstructure:"max_double_bit_binary" validate:"gte=0" yaml:"max_double_bit_binary"`
	MaxAnalog             int `mapstructure:"max_analog" validate:"gte=0" yaml:"max_analog"`
	MaxCounter            int `mapstructure:"max_counter" validate:"gte=0" yaml:"max_counter"`
	MaxFrozenCounter      int `mapstructure:"max_frozen_counter" validate:"gte=0" yaml:"max_frozen_counter"`
	MaxBinaryOutputStatus int `mapstructure:"max_binary_output_status" validate:"gte=0" yaml:"max_binary_output_status"`
	MaxAnalogOutputStatus int `mapstructure:"max_analog_output_status" validate:"gte=0" yaml:"max_analog_output_status"`
}

// MetricsConfig controls the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true" yaml:"address"`
}

// HistorianConfig controls the optional cleared-SOE persistence sink.
type HistorianConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`
}

// ControlConfig configures the local-only HTTP endpoint `run` exposes for
// `simulate-event` to inject synthetic point updates without a real master.
type ControlConfig struct {
	Address string `mapstructure:"address" validate:"required" yaml:"address"`
}

// Load reads configuration in ascending order of precedence: defaults, then
// the config file, then environment variables for keys the file sets. When
// no config file is found, the defaults are returned as they are.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := GetDefaultConfig()
	if !found {
		return cfg, nil
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration, translating a missing file at an explicit
// path or the default location into an actionable error message.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dnp3-outstation init\n\n"+
				"Or specify a custom config file:\n"+
				"  dnp3-outstation <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML, creating parent directories as
// needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts strings like "30s" and raw numbers (assumed
// nanoseconds) into time.Duration fields during mapstructure decoding.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dnp3-outstation")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dnp3-outstation")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
