package domain

import (
	"errors"
	"fmt"
)

// Error is the unified error type for the pipeline.
// Each error has a numeric code and human-readable message. Two errors
// match under errors.Is when their codes are equal.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error.
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates an Error with the code of base, a more specific message,
// and the given cause.
func Wrap(base *Error, msg string, cause error) *Error {
	if msg == "" {
		msg = base.Message
	}
	return &Error{Code: base.Code, Message: msg, Cause: cause}
}

// Errorf creates an Error with the code of base and a formatted message.
func Errorf(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// ---- Tool / subprocess errors (-32010 to -32029) ----

var (
	ErrToolNotFound = &Error{Code: -32010, Message: "agent binary not found"}
	ErrToolTimeout  = &Error{Code: -32011, Message: "agent exceeded timeout"}
	ErrToolFailed   = &Error{Code: -32012, Message: "agent exited with error"}
	ErrToolCanceled = &Error{Code: -32013, Message: "agent call canceled"}
	ErrSpawnFailed  = &Error{Code: -32014, Message: "failed to start agent process"}
)

// ---- Precondition errors (-32040 to -32059) ----

var (
	ErrNoAgentsAvailable  = &Error{Code: -32040, Message: "no CLI agents available"}
	ErrDebateNeedsTwo     = &Error{Code: -32041, Message: "debate requires at least two available CLI agents"}
	ErrUnknownAgent       = &Error{Code: -32042, Message: "unknown CLI agent"}
	ErrAgentUnavailable   = &Error{Code: -32043, Message: "requested CLI agent is not available"}
	ErrInvalidRequest     = &Error{Code: -32044, Message: "invalid request"}
	ErrInvalidPagination  = &Error{Code: -32045, Message: "invalid pagination parameters"}
	ErrResumeNeedsContent = &Error{Code: -32046, Message: "resuming a conversation requires new content"}
)

// ---- Cache errors (-32070 to -32089) ----

var (
	ErrHandleNotFound  = &Error{Code: -32070, Message: "context handle expired or unknown"}
	ErrPayloadTooLarge = &Error{Code: -32071, Message: "payload exceeds maximum cache entry size"}
	ErrCacheCorrupt    = &Error{Code: -32072, Message: "cache entry failed integrity check"}
)

// ---- Store / config errors (-32100 to -32119) ----

var (
	ErrConfigInvalid = &Error{Code: -32100, Message: "invalid configuration"}
	ErrStoreInit     = &Error{Code: -32101, Message: "failed to initialize store"}
	ErrStoreWrite    = &Error{Code: -32102, Message: "store write failed"}
	ErrStoreQuery    = &Error{Code: -32103, Message: "store query failed"}
)
