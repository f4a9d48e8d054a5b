package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"lineagecore/internal/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // operation rejected, e.g. a rule violation
	ExitCommandError = 2 // bad flags or unusable configuration
)

// ExitError carries the process exit code for an error.
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

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Errors without one exit 1.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// violations renders rule outcomes for output.
type violation struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	EntityID string `json:"entity_id,omitempty"`
	Message  string `json:"message"`
}

func violations(res core.Result) []violation {
	out := make([]violation, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violation{Rule: v.Rule, Severity: string(v.Severity), EntityID: v.EntityID, Message: v.Message})
	}
	return out
}
