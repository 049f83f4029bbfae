// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
	"strings"
)

// Common application errors.
var (
	// ErrUnauthorized marks authentication failures. It is fatal: every
	// later request would fail the same way, so callers abort the run.
	ErrUnauthorized = errors.New("authentication failed or token expired")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// FormatError reports a CSV file that is structurally unusable: no attempted
// encoding produced a header containing all required columns. Format errors
// abort the import before any row is processed.
type FormatError struct {
	Path     string
	Encoding string   // last encoding attempted
	Missing  []string // required columns absent from the header
}

func (e *FormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing required columns: %s (tried encoding %s)",
			e.Path, strings.Join(e.Missing, ", "), e.Encoding)
	}
	return fmt.Sprintf("%s: unreadable with any supported encoding", e.Path)
}

// RowError reports a single unusable CSV row. Row errors are counted and
// reported; they never abort a run.
type RowError struct {
	Err  error
	Line int
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}
