/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeConfig indicates a missing or invalid configuration value.
	// Raised before any external side effect occurs.
	ErrCodeConfig ErrorCode = "CONFIG"
	// ErrCodeBuild indicates a container image build failure.
	ErrCodeBuild ErrorCode = "BUILD"
	// ErrCodePublish indicates a registry push or registry auth failure.
	ErrCodePublish ErrorCode = "PUBLISH"
	// ErrCodeRender indicates a template rendering failure, including
	// unresolved or ambiguous placeholder tokens.
	ErrCodeRender ErrorCode = "RENDER"
	// ErrCodeApply indicates the cluster rejected a manifest.
	ErrCodeApply ErrorCode = "APPLY"
	// ErrCodeUnauthorized indicates cluster authentication or authorization failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeTimeout indicates an operation exceeded its wait bound.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeNamespaceConflict indicates a namespace stuck in a lifecycle
	// state that blocks the requested operation.
	ErrCodeNamespaceConflict ErrorCode = "NAMESPACE_CONFLICT"
	// ErrCodeInternal indicates an internal pipeline error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StructuredError provides structured error information for better observability.
// It includes an error code for programmatic handling, a human-readable message,
// the underlying cause, and optional context for debugging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the ErrorCode of err if it is (or wraps) a StructuredError,
// or ErrCodeInternal otherwise.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsFatal reports whether err halts the pipeline. Convergence timeouts are
// warnings per the rollout contract; everything else is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) != ErrCodeTimeout
}
