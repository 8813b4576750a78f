// Package apperr classifies the failures the arbiter can hit.
//
// Transport and invariant errors abort a run. Sync errors are confined to a
// single recipe and cache errors degrade to a cache miss. Callers check the
// class with IsFatal or errors.As against *Error, and individual conditions
// with errors.Is against the sentinels below.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the failure class of an Error.
type Kind string

const (
	// Transport covers non-success responses and API-reported error payloads.
	Transport Kind = "TRANSPORT"

	// Invariant covers broken assumptions about the host's contract:
	// naming conventions, pagination, truncation, unique recipe names.
	Invariant Kind = "INVARIANT"

	// Sync covers a failure confined to one recipe in a sync batch.
	Sync Kind = "SYNC"

	// Cache covers response cache I/O. Never fatal.
	Cache Kind = "CACHE"
)

var (
	// ErrTruncated is returned when a listing reports it was cut short.
	ErrTruncated = errors.New("response truncated by host")

	// ErrPagination is returned when page metadata is missing or malformed.
	ErrPagination = errors.New("pagination metadata unusable")

	// ErrNamingConvention is returned when a repository name does not carry
	// the expected recipe suffix.
	ErrNamingConvention = errors.New("repository name breaks naming convention")

	// ErrNameCollision is returned when two recipe roots resolve to one name.
	ErrNameCollision = errors.New("recipe name collision")

	// ErrMissingCounterpart is returned when the destination of an
	// internalize has no existing recipe directory.
	ErrMissingCounterpart = errors.New("recipe has no counterpart in destination")

	// ErrNoCounterpartRepo is returned when a recipe has no per-package
	// public repository to externalize into.
	ErrNoCounterpartRepo = errors.New("recipe has no public repository")

	// ErrMergeConflict is returned when mainline cannot be merged into the
	// working branch.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrUnreadable is returned when the extractor meets a path it may not
	// read and the caller asked for that to be fatal.
	ErrUnreadable = errors.New("path not readable")

	// ErrSymlink is returned when the extractor meets a symbolic link and the
	// caller asked for that to be fatal.
	ErrSymlink = errors.New("symbolic link in recipe")
)

// Error carries the failure class and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation name. It returns nil for a nil err.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transportf builds a transport error from a formatted message.
func Transportf(op, format string, args ...any) error {
	return &Error{Kind: Transport, Op: op, Err: fmt.Errorf(format, args...)}
}

// Invariantf wraps a sentinel into an invariant error with extra detail.
func Invariantf(op string, sentinel error, format string, args ...any) error {
	return &Error{
		Kind: Invariant,
		Op:   op,
		Err:  fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// KindOf reports the kind of the outermost *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case Sync, Cache:
		return false
	default:
		return err != nil
	}
}
