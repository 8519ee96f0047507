package commands

import (
	"fmt"

	"github.com/bmironenko/dnp3/internal/config"
	"github.com/bmironenko/dnp3/internal/logger"
)

// initLogger configures the package-level logger from loaded configuration.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
