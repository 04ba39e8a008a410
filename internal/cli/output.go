package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/keyturn/keyturn/internal/workflow"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // workflow rejection (blockers, invalid transition, inconsistent replay)
	ExitCommandError = 2 // command error (bad arguments, database not found)
)

// ExitError carries a specific exit code out of a command.
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Returns ExitFailure if
// the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostic output; defaults to Writer
	Verbose   bool
}

// Response is the standard JSON envelope for CLI output.
type Response struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the error structure inside a Response.
type ErrorBody struct {
	Code     string              `json:"code"` // workflow error code or "COMMAND_ERROR"
	Message  string              `json:"message"`
	Blockers []workflow.Blocker  `json:"blockers,omitempty"`
}

// Success outputs a successful result in the configured format. In text
// mode data is expected to be a pre-rendered string.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, blockers []workflow.Blocker) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Error:  &ErrorBody{Code: code, Message: message, Blockers: blockers},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	for _, b := range blockers {
		fmt.Fprintf(f.Writer, "  - %s\n", b)
	}
	return nil
}

// VerboseLog outputs a message only in verbose mode. Diagnostics go to
// ErrWriter so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// WorkflowError renders a workflow engine error and converts it to the
// appropriate exit code. Rejections (blockers, invalid transitions) exit 1;
// everything else is a command error.
func (f *OutputFormatter) WorkflowError(err error) error {
	code := workflow.CodeOf(err)
	if code == "" {
		if outErr := f.Error("COMMAND_ERROR", err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "command failed", err)
	}
	if outErr := f.Error(string(code), err.Error(), workflow.BlockersOf(err)); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, string(code), err)
}
