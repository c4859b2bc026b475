package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"kanaime/internal/ime"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "kanaime://config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports whether the issue is non-fatal.
func (e *ValidationError) IsWarning() bool {
	return strings.HasPrefix(e.Field, "zenzai.")
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for i := range e {
		if e[i].IsWarning() {
			out = append(out, e[i])
		}
	}
	return out
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for i := range e {
		if !e[i].IsWarning() {
			out = append(out, e[i])
		}
	}
	return out
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ValidateConfig checks every section. Only warnings present yields nil.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := validateAll(c)
	if !all.HasErrors() {
		return nil
	}
	return all
}

// Check returns every issue, warnings included.
func Check(c *Config) ValidationErrors {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return validateAll(c)
}

func validateAll(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}
	errs = append(errs, validateIME(&c.IME)...)
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateWindow(&c.Window)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateTelemetry(&c.Telemetry)...)
	errs = append(errs, validateZenzai(&c.Zenzai)...)
	return errs
}

func validateIME(i *IMEConfig) ValidationErrors {
	var errs ValidationErrors
	if _, err := ime.ParseInputMode(i.DefaultMode); err != nil {
		errs = append(errs, ValidationError{
			Field:   "ime.default_mode",
			Message: fmt.Sprintf("invalid mode: %s (valid: latin, kana)", i.DefaultMode),
		})
	}
	return errs
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors
	if e.Endpoint == "" {
		errs = append(errs, *RequiredFieldError("engine.endpoint"))
	}
	if e.DialIntervalMs < 1 || e.DialIntervalMs > 60000 {
		errs = append(errs, *RangeError("engine.dial_interval_ms", 1, 60000))
	}
	if e.MaxCandidates < 1 || e.MaxCandidates > 1000 {
		errs = append(errs, *RangeError("engine.max_candidates", 1, 1000))
	}
	return errs
}

func validateWindow(w *WindowConfig) ValidationErrors {
	var errs ValidationErrors
	if w.Endpoint == "" {
		errs = append(errs, *RequiredFieldError("window.endpoint"))
	}
	if w.DialIntervalMs < 1 || w.DialIntervalMs > 60000 {
		errs = append(errs, *RangeError("window.dial_interval_ms", 1, 60000))
	}
	if w.PageSize < 1 || w.PageSize > 20 {
		errs = append(errs, *RangeError("window.page_size", 1, 20))
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateTelemetry(t *TelemetryConfig) ValidationErrors {
	var errs ValidationErrors
	if t.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(t.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "telemetry.metrics_addr",
				Message: fmt.Sprintf("invalid address: %v", err),
			})
		}
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, *RangeError("telemetry.sample_ratio", 0, 1))
	}
	return errs
}

func validateZenzai(z *ZenzaiConfig) ValidationErrors {
	var errs ValidationErrors
	switch z.Backend {
	case "cpu", "vulkan", "cuda", "metal":
	default:
		errs = append(errs, ValidationError{
			Field:   "zenzai.backend",
			Message: fmt.Sprintf("unknown backend: %s", z.Backend),
		})
	}
	if z.Enable {
		errs = append(errs, ValidationError{
			Field:   "zenzai.enable",
			Message: "neural conversion is not available in this engine; setting is forwarded only",
		})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// ValidateJSON checks a JSON settings document against the embedded
// schema.
func ValidateJSON(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
