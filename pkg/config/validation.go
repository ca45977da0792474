package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittoots/pkg/ots"
	"github.com/robfig/cron/v3"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// objecttype accepts anything ots.ParseObjectType understands
	_ = validate.RegisterValidation("objecttype", func(fl validator.FieldLevel) bool {
		_, err := ots.ParseObjectType(fl.Field().String())
		return err == nil
	})
}

// Validate validates the configuration using struct tags and the rules
// that cannot be expressed in tags.
//
// Log level normalization happens in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.TCP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	for i, s := range cfg.OTS.CreatableTypes {
		t, _ := ots.ParseObjectType(s)
		if t.Equal(ots.DirectoryListingType) {
			return fmt.Errorf("ots.creatable_types[%d]: the directory listing type cannot be created", i)
		}
	}

	if cfg.OTS.MaxObjectSize > 0 && cfg.Content.Type == "memory" {
		if limit, ok := cfg.Content.Memory["max_size_bytes"]; ok {
			if n, ok := toUint64(limit); ok && n > 0 && n < uint64(cfg.OTS.MaxObjectSize) {
				return fmt.Errorf("ots.max_object_size (%d) exceeds content.memory.max_size_bytes (%d)",
					cfg.OTS.MaxObjectSize, n)
			}
		}
	}

	if cfg.GC.Enabled {
		if _, err := cron.ParseStandard(cfg.GC.Schedule); err != nil {
			return fmt.Errorf("gc.schedule: %w", err)
		}
	}

	if cfg.Importer.Enabled {
		t, err := ots.ParseObjectType(cfg.Importer.DefaultType)
		if err != nil {
			return fmt.Errorf("importer.default_type: %w", err)
		}
		if t.Equal(ots.DirectoryListingType) {
			return fmt.Errorf("importer.default_type: the directory listing type cannot be imported")
		}
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.TCP.Port {
		return fmt.Errorf("server.metrics.port %d collides with adapters.tcp.port", cfg.Server.Metrics.Port)
	}

	return nil
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case float64:
		return uint64(n), n >= 0
	default:
		return 0, false
	}
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
