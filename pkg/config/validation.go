package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if _, err := namespace.NewNameRules(cfg.Namespace.NamePattern, cfg.Namespace.NameMaxLength); err != nil {
		return fmt.Errorf("namespace.name_pattern: %w", err)
	}

	if _, ok := namespace.ParseMatchMode(cfg.Namespace.SearchMode); !ok {
		return fmt.Errorf("namespace.search_mode: unknown mode %q", cfg.Namespace.SearchMode)
	}

	if err := validateStoreSection(&cfg.Store); err != nil {
		return err
	}

	if cfg.Blob.Type == "s3" {
		if bucket, _ := cfg.Blob.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("blob.s3.bucket: required when blob.type is s3")
		}
	}

	return nil
}

// validateStoreSection checks the section of the selected backend has its
// mandatory keys.
func validateStoreSection(cfg *StoreConfig) error {
	required := map[string]struct {
		section map[string]any
		key     string
	}{
		"file":     {cfg.File, "path"},
		"badger":   {cfg.Badger, "db_path"},
		"postgres": {cfg.Postgres, "dsn"},
	}

	req, ok := required[cfg.Type]
	if !ok {
		return nil
	}
	if v, _ := req.section[req.key].(string); v == "" {
		return fmt.Errorf("store.%s.%s: required when store.type is %s", cfg.Type, req.key, cfg.Type)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
