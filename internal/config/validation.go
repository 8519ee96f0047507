package config

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate checks cfg against its struct tags (required fields, positive
// durations, oneof enumerations).
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
