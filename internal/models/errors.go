package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transient is implemented by errors that may succeed on a later attempt.
type Transient interface {
	IsTransient() bool
}

// IsTransient reports whether any error in err's chain is marked transient.
func IsTransient(err error) bool {
	var t Transient
	if errors.As(err, &t) {
		return t.IsTransient()
	}
	return false
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) IsTransient() bool {
	return false
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// InvalidParameterError is raised when a caller-supplied parameter fails schema validation
type InvalidParameterError struct {
	Dataset   string
	Parameter string
	Value     string
	Allowed   []string
	Reason    string
}

func (e *InvalidParameterError) Error() string {
	msg := fmt.Sprintf("dataset %s: invalid parameter %q=%q: %s", e.Dataset, e.Parameter, e.Value, e.Reason)
	if len(e.Allowed) > 0 {
		msg += fmt.Sprintf(" (allowed: %s)", strings.Join(e.Allowed, ", "))
	}
	return msg
}

func (e *InvalidParameterError) IsTransient() bool {
	return false
}

// TemplateRenderError signals a schema whose template references an unknown placeholder
type TemplateRenderError struct {
	Dataset     string
	Template    string
	Placeholder string
	Reason      string
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("dataset %s: cannot render %q: placeholder {%s}: %s", e.Dataset, e.Template, e.Placeholder, e.Reason)
}

func (e *TemplateRenderError) IsTransient() bool {
	return false
}

// NetworkError wraps a transport failure
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) IsTransient() bool {
	return true
}

// HTTPError is a non-2xx upstream response
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsTransient is true for server errors and rate limiting only.
func (e *HTTPError) IsTransient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// TimeoutError is raised when a request exceeds its deadline
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

func (e *TimeoutError) IsTransient() bool {
	return true
}

// ParseError is raised when a payload does not have the expected tabular shape
type ParseError struct {
	Source string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s line %d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s: %s", e.Source, e.Reason)
}

func (e *ParseError) IsTransient() bool {
	return false
}

// IncompleteDownloadError marks a file that exists but was never completed
type IncompleteDownloadError struct {
	Path string
}

func (e *IncompleteDownloadError) Error() string {
	return fmt.Sprintf("incomplete download at %s", e.Path)
}

func (e *IncompleteDownloadError) IsTransient() bool {
	return true
}
