package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypePlan       ErrorType = "plan"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeDependency ErrorType = "dependency"
	ErrorTypeSegments   ErrorType = "segments"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeIO         ErrorType = "io"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

// PlanError marks a structurally invalid plan from the generative collaborator.
// The plan stage persists nothing when it returns one.
func PlanError(message string, err error) *DomainError {
	return NewError(ErrorTypePlan, message, err)
}

func RenderError(message string, err error) *DomainError {
	return NewError(ErrorTypeRender, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(ErrorTypeAPI, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

// IsType reports whether err wraps a DomainError of the given type.
func IsType(err error, t ErrorType) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Type == t
	}
	return false
}

// MissingDependencyError is returned when a video segment cannot be rendered
// because one or both of its bounding slide artifacts are absent or stale.
type MissingDependencyError struct {
	Segment       int
	MissingSlides []int
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("[%s] segment %d requires slide artifacts %s",
		ErrorTypeDependency, e.Segment, formatIndices(e.MissingSlides))
}

// IncompleteSegmentsError is returned by fusion when the contiguous set of
// video segments for the current plan has gaps.
type IncompleteSegmentsError struct {
	Expected int
	Missing  []int
}

func (e *IncompleteSegmentsError) Error() string {
	return fmt.Sprintf("[%s] fusion needs %d segments, missing %s",
		ErrorTypeSegments, e.Expected, formatIndices(e.Missing))
}

func formatIndices(idx []int) string {
	sorted := append([]int(nil), idx...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
