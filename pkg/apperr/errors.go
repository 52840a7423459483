package apperr

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing entity
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError for a resource identified by any printable id
func NotFound(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// ConfigurationError reports an unknown tier or a missing required mapping
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Configuration builds a ConfigurationError from a format string
func Configuration(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// DependencyError reports a failed or timed out call to the database or payment provider.
// Callers may retry.
type DependencyError struct {
	Dependency string
	Op         string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Dependency, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Dependency wraps err as a DependencyError. A nil err yields nil.
// Errors that are already classified pass through untouched.
func Dependency(dependency, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConfiguration(err) || IsDependency(err) {
		return err
	}
	return &DependencyError{Dependency: dependency, Op: op, Err: err}
}

// PartialEnrichmentError reports a failed enrichment step whose field was zeroed
type PartialEnrichmentError struct {
	Step string
	Err  error
}

func (e *PartialEnrichmentError) Error() string {
	return fmt.Sprintf("enrichment step %s failed: %v", e.Step, e.Err)
}

func (e *PartialEnrichmentError) Unwrap() error {
	return e.Err
}

// IsNotFound checks if err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConfiguration checks if err is or wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsDependency checks if err is or wraps a DependencyError
func IsDependency(err error) bool {
	var target *DependencyError
	return errors.As(err, &target)
}

// IsPartialEnrichment checks if err is or wraps a PartialEnrichmentError
func IsPartialEnrichment(err error) bool {
	var target *PartialEnrichmentError
	return errors.As(err, &target)
}
