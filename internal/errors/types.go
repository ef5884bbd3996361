// Package errors defines the structured error values produced by the
// pipeline's transform tasks, the collector that records per-file failures
// swallowed by a fault barrier, and the parser that turns style compiler
// diagnostics into file locations.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeCompile   ErrorType = "compile"
	ErrorTypeTranspile ErrorType = "transpile"
	ErrorTypeBundle    ErrorType = "bundle"
	ErrorTypeOptimize  ErrorType = "optimize"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeConfig    ErrorType = "config"
)

// Common error codes.
const (
	ErrCodeCompileFailed   = "ERR_COMPILE_FAILED"
	ErrCodeCompilerMissing = "ERR_COMPILER_MISSING"
	ErrCodeTranspileFailed = "ERR_TRANSPILE_FAILED"
	ErrCodeBundleFailed    = "ERR_BUNDLE_FAILED"
	ErrCodeEntryNotFound   = "ERR_ENTRY_NOT_FOUND"
	ErrCodeImageDecode     = "ERR_IMAGE_DECODE"
	ErrCodeReadFailed      = "ERR_READ_FAILED"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodePathTraversal   = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidGlob     = "ERR_INVALID_GLOB"
)

// PipelineError is a structured error type with task and location context.
type PipelineError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Task        string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Task != "" {
		parts = append(parts, "task:"+e.Task)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation adds file location information.
func (e *PipelineError) WithLocation(filePath string, line, column int) *PipelineError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithTask records which task produced the error.
func (e *PipelineError) WithTask(task string) *PipelineError {
	e.Task = task

	return e
}

// NewCompileError creates a style compile error.
func NewCompileError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeCompile,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewTranspileError creates a script transpile or minify error.
func NewTranspileError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeTranspile,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBundleError creates a script bundling error.
func NewBundleError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeBundle,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewOptimizeError creates an image optimization error.
func NewOptimizeError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:        ErrorTypeOptimize,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsType reports whether err is a PipelineError of the given type.
func IsType(err error, errType ErrorType) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type == errType
	}

	return false
}

// WrapIO wraps an I/O failure for path with a code, or returns nil.
func WrapIO(code, path string, err error) error {
	if err == nil {
		return nil
	}

	return NewIOError(code, "file operation failed", err).WithLocation(path, 0, 0)
}
