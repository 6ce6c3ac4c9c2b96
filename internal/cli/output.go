package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitPartial      = 1 // the run finished but some items failed
	ExitCommandError = 2 // configuration or connection errors
)

// ExitError carries the process exit code of a failed command.
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

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// report is a batch result that can describe itself on one line.
type report interface {
	String() string
}

// writeResult prints v as indented JSON or as its one-line summary followed
// by one line per item error.
func writeResult(w io.Writer, format string, v report, itemErrs []error) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if _, err := fmt.Fprintln(w, v.String()); err != nil {
		return err
	}
	for _, e := range itemErrs {
		if _, err := fmt.Fprintf(w, "  error: %v\n", e); err != nil {
			return err
		}
	}
	return nil
}

// partial turns a result with item errors into an ExitPartial error.
func partial(what string, n int) error {
	if n == 0 {
		return nil
	}
	return &ExitError{Code: ExitPartial, Message: fmt.Sprintf("%s finished with %d failed items", what, n)}
}
