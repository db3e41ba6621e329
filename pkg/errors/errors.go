package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeFatalJob  = "FATAL_JOB_ERROR"
	CodeFormat    = "FORMAT_ERROR"
	CodeRateLimit = "RATE_LIMIT_ERROR"
	CodeEngine    = "ENGINE_ERROR"
	CodeStore     = "STORE_ERROR"
	CodeCache     = "CACHE_ERROR"
)

type PipelineError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// FatalJobError aborts an entire job: a required lookup (work set, language
// metadata, prompt template) failed. Distinct from per-unit warnings, which
// never escalate to job failure.
type FatalJobError struct {
	*PipelineError
	Step string
}

func NewFatalJobError(message, step string, cause error) *FatalJobError {
	return &FatalJobError{
		PipelineError: &PipelineError{
			Message:    message,
			Code:       CodeFatalJob,
			StatusCode: 500,
			Context:    map[string]any{"step": step},
			Cause:      cause,
		},
		Step: step,
	}
}

// FormatError reports a malformed uploaded file, surfaced before anything
// is persisted.
type FormatError struct {
	*PipelineError
	ColumnsFound []string
}

func NewFormatError(message string, columnsFound []string) *FormatError {
	return &FormatError{
		PipelineError: &PipelineError{
			Message:    message,
			Code:       CodeFormat,
			StatusCode: 400,
			Context:    map[string]any{"columns_found": columnsFound},
		},
		ColumnsFound: columnsFound,
	}
}

// RateLimitError signals engine throttling (HTTP 429 equivalent).
type RateLimitError struct {
	*PipelineError
}

func NewRateLimitError(message string, cause error) *RateLimitError {
	return &RateLimitError{
		PipelineError: &PipelineError{
			Message:    message,
			Code:       CodeRateLimit,
			StatusCode: 429,
			Cause:      cause,
		},
	}
}

// EngineError is any non-rate-limit failure of an AI engine call.
type EngineError struct {
	*PipelineError
	Provider string
}

func NewEngineError(message, provider string, cause error) *EngineError {
	return &EngineError{
		PipelineError: &PipelineError{
			Message:    message,
			Code:       CodeEngine,
			StatusCode: 502,
			Context:    map[string]any{"provider": provider},
			Cause:      cause,
		},
		Provider: provider,
	}
}

type StoreError struct {
	*PipelineError
	Operation string
}

func NewStoreError(message, operation string, cause error) *StoreError {
	return &StoreError{
		PipelineError: &PipelineError{
			Message:    message,
			Code:       CodeStore,
			StatusCode: 500,
			Context:    map[string]any{"operation": operation},
			Cause:      cause,
		},
		Operation: operation,
	}
}

type CacheError struct {
	*PipelineError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		PipelineError: &PipelineError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context:    map[string]any{"operation": operation, "key": key},
			Cause:      cause,
		},
		Operation: operation,
		Key:       key,
	}
}

func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return stderrors.As(err, &rl)
}

func IsFatalJob(err error) bool {
	var fj *FatalJobError
	return stderrors.As(err, &fj)
}

func IsFormat(err error) bool {
	var fe *FormatError
	return stderrors.As(err, &fe)
}
