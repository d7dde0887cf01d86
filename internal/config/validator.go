package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

var (
	logLevels     = []string{"trace", "debug", "info", "warn", "error", "disabled"}
	outputFormats = []string{"table", "json", "csv"}
	inspectArches = []string{"", "amd64", "arm64"}
)

// Validate validates GlobalConfig.
func (c *GlobalConfig) Validate() error {
	var errors []ValidationError

	if c.Version == "" {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: "version is required",
		})
	}

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("log level must be one of %s", strings.Join(logLevels, ", ")),
		})
	}

	if !slices.Contains(outputFormats, c.Output.Format) {
		errors = append(errors, ValidationError{
			Field:   "output.format",
			Message: "output format must be 'table', 'json', or 'csv'",
		})
	}

	if !slices.Contains(inspectArches, c.Inspect.Arch) {
		errors = append(errors, ValidationError{
			Field:   "inspect.arch",
			Message: "inspect arch must be 'amd64' or 'arm64'",
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}
	return nil
}
