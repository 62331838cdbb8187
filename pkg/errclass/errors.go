// Package errclass defines the stable, machine-readable error classes of the
// decision-audit engine.
package errclass

import "fmt"

// Error is a stable, machine-readable error class.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target carries the same error class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Stable error classes.
var (
	// ErrEncoding: payload shape cannot be canonicalized. Never coerced.
	ErrEncoding = &Error{Code: "E_ENCODING"}
	// ErrHashMismatch: stored content does not hash to its address.
	ErrHashMismatch = &Error{Code: "E_HASH_MISMATCH"}
	// ErrNotFound: referenced snapshot or record is absent.
	ErrNotFound = &Error{Code: "E_NOT_FOUND"}
	// ErrCorruption: a log line cannot be decoded.
	ErrCorruption = &Error{Code: "E_CORRUPTION"}
	// ErrMigration: a legacy record has no documented upgrade path.
	ErrMigration = &Error{Code: "E_MIGRATION"}
	// ErrReplay: the decision function failed, panicked or timed out.
	ErrReplay = &Error{Code: "E_REPLAY"}

	ErrRecordInvalid  = &Error{Code: "E_RECORD_INVALID"}
	ErrCursorConflict = &Error{Code: "E_CURSOR_CONFLICT"}
	ErrNameInvalid    = &Error{Code: "E_NAME_INVALID"}
	ErrPathEscape     = &Error{Code: "E_PATH_ESCAPE"}
)
