package engine

import (
	"errors"
	"fmt"
)

// LoadCode classifies why a resource archive could not be opened.
type LoadCode string

const (
	LoadNotFound          LoadCode = "NOT_FOUND"
	LoadCorrupt           LoadCode = "CORRUPT"
	LoadUnsupportedFormat LoadCode = "UNSUPPORTED_FORMAT"
)

// LoadError is fatal and only ever produced at startup.
type LoadError struct {
	Code LoadCode
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load resource %s: %s", e.Path, e.Code)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is matches any LoadError carrying the same code, so callers can test
// errors.Is(err, engine.ErrNotFound).
func (e *LoadError) Is(target error) bool {
	t, ok := target.(*LoadError)
	return ok && t.Code == e.Code
}

// AnalysisCode classifies a failed analysis call.
type AnalysisCode string

const (
	Timeout      AnalysisCode = "TIMEOUT"
	InvalidInput AnalysisCode = "INVALID_INPUT"
	EngineFault  AnalysisCode = "ENGINE_FAULT"
	Overloaded   AnalysisCode = "OVERLOADED"
)

// AnalysisError is recoverable and always ends in an HTTP response.
type AnalysisError struct {
	Code AnalysisCode
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("analysis %s", e.Code)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound          = &LoadError{Code: LoadNotFound}
	ErrCorrupt           = &LoadError{Code: LoadCorrupt}
	ErrUnsupportedFormat = &LoadError{Code: LoadUnsupportedFormat}

	ErrTimeout      = &AnalysisError{Code: Timeout}
	ErrInvalidInput = &AnalysisError{Code: InvalidInput}
	ErrEngineFault  = &AnalysisError{Code: EngineFault}
	ErrOverloaded   = &AnalysisError{Code: Overloaded}

	// ErrCanceled reports that the caller went away before the engine was invoked.
	ErrCanceled = errors.New("analysis canceled by caller")
)

// NewAnalysisError wraps err with code.
func NewAnalysisError(code AnalysisCode, err error) *AnalysisError {
	return &AnalysisError{Code: code, Err: err}
}

// CodeOf returns the analysis code carried by err, if any.
func CodeOf(err error) (AnalysisCode, bool) {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}
