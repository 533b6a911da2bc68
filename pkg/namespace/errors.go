package namespace

import "errors"

// Error represents a domain error from namespace operations.
//
// These are business logic errors (folder not found, invalid name, etc.)
// as opposed to infrastructure errors (disk full, database unreachable).
// Infrastructure failures surface through the persistence layer as a
// PersistenceError, which reports ErrPersistence from Code().
//
// Front ends (bot handlers, import workers) translate ErrorCode values to
// user-facing messages.
type Error struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the ID path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a namespace error.
type ErrorCode int

const (
	// ErrNotFound indicates a path does not resolve to an existing folder
	// (unknown segment, wrong parentage, or a file where a folder is needed)
	ErrNotFound ErrorCode = iota

	// ErrInvalidName indicates a name is empty, too long or contains
	// characters outside the allowed set
	ErrInvalidName

	// ErrDuplicateName indicates a sibling folder already uses the name
	// (compared case-insensitively)
	ErrDuplicateName

	// ErrInvalidPath indicates a malformed path token
	// Different from ErrNotFound - the token itself cannot be parsed
	ErrInvalidPath

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: negative size, moving a folder into its own subtree
	ErrInvalidArgument

	// ErrPersistence indicates the change could not be made durable.
	// The in-memory tree may already reflect the change.
	ErrPersistence
)

// String returns the code name used in logs and metric labels.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidName:
		return "invalid_name"
	case ErrDuplicateName:
		return "duplicate_name"
	case ErrInvalidPath:
		return "invalid_path"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// coder is implemented by errors that carry an ErrorCode.
type coder interface {
	Code() ErrorCode
}

// CodeOf extracts the ErrorCode carried by err.
//
// Returns false if no error in the chain carries a code.
func CodeOf(err error) (ErrorCode, bool) {
	var nsErr *Error
	if errors.As(err, &nsErr) {
		return nsErr.Code, true
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code(), true
	}
	return 0, false
}

// IsCode reports whether err carries the given ErrorCode.
func IsCode(err error, code ErrorCode) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

func notFound(msg, path string) error {
	return &Error{Code: ErrNotFound, Message: msg, Path: path}
}

func invalidArgument(msg, path string) error {
	return &Error{Code: ErrInvalidArgument, Message: msg, Path: path}
}
