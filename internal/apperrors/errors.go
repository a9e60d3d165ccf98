// Package apperrors defines the structured error kinds the pipeline uses,
// following the shape of the teacher's internal/errors.ViewraError: a code,
// a human message, optional context, and an HTTP status for handlers that
// need to answer a request. See spec.md §7 for the kind catalogue.
package apperrors

import (
	"fmt"
	"net/http"
)

// Code identifies one of the error kinds spec.md §7 names.
type Code string

const (
	CodeToolNotFound Code = "tool_not_found"
	CodeToolFailed   Code = "tool_failed"
	CodeParseError   Code = "parse_error"
	CodeInvalidMp4   Code = "invalid_mp4"
	CodeNotFound     Code = "not_found"
	CodeValidation   Code = "validation"
	CodeInternal     Code = "internal"
	CodeCancelled    Code = "cancelled"
)

// PipelineError is the structured error type returned by every package in
// this module. HTTP handlers return only Code and Message to clients; Cause
// and Context are not sent, and they can hold full host paths (an os error's
// path, a tool's resolved path), which Error() includes via the cause.
type PipelineError struct {
	Code    Code
	Message string
	Context map[string]interface{}
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// HTTPStatus maps the error kind to an HTTP status code for handlers.
func (e *PipelineError) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeCancelled:
		return 499
	case CodeToolNotFound, CodeToolFailed, CodeParseError, CodeInvalidMp4, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a job that failed with this error kind may be
// retried per spec.md §4.G's failure classification: ToolNotFound never
// retries (it would just fail again), parse errors are non-retryable by
// convention, everything else may be retried at the caller's discretion.
func (e *PipelineError) Retryable() bool {
	switch e.Code {
	case CodeToolNotFound, CodeParseError, CodeInvalidMp4:
		return false
	default:
		return true
	}
}

func New(code Code, message string, cause error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Context: map[string]interface{}{}, Cause: cause}
}

func ToolNotFound(tool string) *PipelineError {
	return &PipelineError{Code: CodeToolNotFound, Message: fmt.Sprintf("required tool not found: %s", tool), Context: map[string]interface{}{"tool": tool}}
}

func ToolFailed(tool, message string, exitCode int) *PipelineError {
	return &PipelineError{
		Code:    CodeToolFailed,
		Message: message,
		Context: map[string]interface{}{"tool": tool, "exit_code": exitCode},
	}
}

func ParseError(backend, message string) *PipelineError {
	return &PipelineError{Code: CodeParseError, Message: message, Context: map[string]interface{}{"backend": backend}}
}

func InvalidMp4(reason string) *PipelineError {
	return &PipelineError{Code: CodeInvalidMp4, Message: reason}
}

func NotFound(kind, id string) *PipelineError {
	return &PipelineError{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", kind), Context: map[string]interface{}{"kind": kind, "id": id}}
}

func Validation(field, reason string) *PipelineError {
	return &PipelineError{Code: CodeValidation, Message: reason, Context: map[string]interface{}{"field": field}}
}

func Internal(message string, cause error) *PipelineError {
	return &PipelineError{Code: CodeInternal, Message: message, Cause: cause}
}

func Cancelled() *PipelineError {
	return &PipelineError{Code: CodeCancelled, Message: "operation cancelled"}
}
