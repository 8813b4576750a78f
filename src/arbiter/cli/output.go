package cli

import (
	"errors"
	"fmt"
)

// Exit codes
const (
	ExitOK        = 0
	ExitFailure   = 1 // Fatal error: transport, broken invariant, unexpected failure
	ExitUsage     = 2 // Bad flags or configuration
	ExitAllFailed = 3 // Every recipe of a sync batch failed
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps err to the process exit status. Errors without an explicit
// code are fatal.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}
