// Package errors classifies stage failures for the assembly pipeline.
//
// Every stage converts collaborator errors into one of three codes at its
// boundary:
//
//	// A single option failed; the stage moved on to the next one.
//	return errors.Degraded(StageBackground, "pexels search failed", err)
//
//	// Every option in a fallback chain failed.
//	return errors.Exhausted(StageBackground, "no footage from any provider", nil)
//
//	// No fallback exists and downstream needs the output.
//	return errors.Fatal(StageNarration, "every voice rejected chunk 2", err)
//
// Only Fatal errors are returned from pipeline.Run.
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code is the severity of a stage failure.
type Code string

const (
	CodeDegraded  Code = "DEGRADED"
	CodeExhausted Code = "EXHAUSTED"
	CodeFatal     Code = "FATAL"
)

// Stage names used in errors and log attributes.
const (
	StageSetup      = "setup"
	StageResearch   = "research"
	StageScript     = "script"
	StageHook       = "hook"
	StageNarration  = "narration"
	StageCTA        = "cta"
	StageMerge      = "merge"
	StageCaptions   = "captions"
	StageBackground = "background"
	StageMusic      = "music"
	StageRender     = "render"
	StageMetadata   = "metadata"
	StageUpload     = "upload"
)

// Error is a stage failure with a severity code.
type Error struct {
	Code    Code   `json:"code"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := e.Message
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors for use with errors.Is().
var (
	ErrDegraded  = &Error{Code: CodeDegraded, Message: "degraded"}
	ErrExhausted = &Error{Code: CodeExhausted, Message: "exhausted"}
	ErrFatal     = &Error{Code: CodeFatal, Message: "fatal"}

	// ErrNoFootage is returned by background acquisition when no provider
	// produced a single usable asset.
	ErrNoFootage = &Error{Code: CodeExhausted, Stage: StageBackground, Message: "no background footage"}
)

// Degraded creates a degraded error for stage.
func Degraded(stage, msg string, cause error) *Error {
	return &Error{Code: CodeDegraded, Stage: stage, Message: msg, cause: cause}
}

// Exhausted creates an exhausted error for stage.
func Exhausted(stage, msg string, cause error) *Error {
	return &Error{Code: CodeExhausted, Stage: stage, Message: msg, cause: cause}
}

// Fatal creates a fatal error for stage.
func Fatal(stage, msg string, cause error) *Error {
	return &Error{Code: CodeFatal, Stage: stage, Message: msg, cause: cause}
}

// Fatalf creates a fatal error with a formatted message.
func Fatalf(stage, format string, args ...any) *Error {
	return &Error{Code: CodeFatal, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// StageOf returns the stage of the first *Error in err's chain, or "" if none.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// IsFatal reports whether err carries CodeFatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
