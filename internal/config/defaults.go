package config

import "time"

// ApplyDefaults fills any zero-valued field left after decoding with this
// engine's defaults. Explicit values from file or environment are left
// untouched.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyLinkDefaults(&cfg.Link)
	applyOutstationDefaults(&cfg.Outstation)
	applyEventsDefaults(&cfg.Events)
	applyMetricsDefaults(&cfg.Metrics)
	applyHistorianDefaults(&cfg.Historian)
	applyControlDefaults(&cfg.Control)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyLinkDefaults(cfg *LinkConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "0.0.0.0:20000"
	}
}

func applyOutstationDefaults(cfg *OutstationConfig) {
	if cfg.SelectTimeout == 0 {
		cfg.SelectTimeout = 10 * time.Second
	}
	if cfg.SolConfirmTimeout == 0 {
		cfg.SolConfirmTimeout = 5 * time.Second
	}
	if cfg.UnsolConfirmTimeout == 0 {
		cfg.UnsolConfirmTimeout = 5 * time.Second
	}
	if cfg.UnsolRetryTimeout == 0 {
		cfg.UnsolRetryTimeout = 5 * time.Second
	}
	if cfg.MaxTxFragSize == 0 {
		cfg.MaxTxFragSize = 2048
	}
	if cfg.MaxRxFragSize == 0 {
		cfg.MaxRxFragSize = 2048
	}
}

func applyEventsDefaults(cfg *EventsConfig) {
	const defaultCap = 100
	if cfg.MaxBinary == 0 {
		cfg.MaxBinary = defaultCap
	}
	if cfg.MaxDoubleBitBinary == 0 {
		cfg.MaxDoubleBitBinary = defaultCap
	}
	if cfg.MaxAnalog == 0 {
		cfg.MaxAnalog = defaultCap
	}
	if cfg.MaxCounter == 0 {
		cfg.MaxCounter = defaultCap
	}
	if cfg.MaxFrozenCounter == 0 {
		cfg.MaxFrozenCounter = defaultCap
	}
	if cfg.MaxBinaryOutputStatus == 0 {
		cfg.MaxBinaryOutputStatus = defaultCap
	}
	if cfg.MaxAnalogOutputStatus == 0 {
		cfg.MaxAnalogOutputStatus = defaultCap
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Address == "" {
		cfg.Address = "0.0.0.0:9110"
	}
}

func applyHistorianDefaults(cfg *HistorianConfig) {
	if cfg.Path == "" {
		cfg.Path = "dnp3-outstation-historian.db"
	}
}

func applyControlDefaults(cfg *ControlConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:20001"
	}
}

// GetDefaultConfig returns a fully defaulted configuration, equivalent to
// loading an empty file.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
