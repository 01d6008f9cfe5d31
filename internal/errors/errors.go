// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the chessmate CLI.
//
// It defines UserError, a type that carries what went wrong, why it
// happened, and how to fix it, together with the exit code the CLI must
// use. It also defines the sentinel error kinds shared by the ingestion
// and query pipelines (queue saturation, dependency unavailability, and
// the per-game PGN failures that are skipped rather than surfaced).
//
// # Exit Codes
//
//   - ExitSuccess (0): successful execution
//   - ExitUser    (1): user error (bad input, malformed PGN, queue saturated)
//   - ExitInfra   (2): infrastructure error (database, embedder, vector store)
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for the chessmate CLI.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitUser indicates a user error: bad arguments, malformed input,
	// or an ingest run aborted by queue admission control.
	ExitUser = 1

	// ExitInfra indicates an infrastructure error: the metadata store,
	// embedder, or vector store failed or is unreachable.
	ExitInfra = 2
)

// Sentinel errors for the pipeline. Callers classify with errors.Is.
var (
	// ErrQueueSaturated aborts an ingest run when the pending embedding
	// queue exceeds the admission threshold.
	ErrQueueSaturated = errors.New("embedding queue saturated")

	// ErrUnavailable reports that an external dependency is down or
	// timed out. The hybrid executor degrades on it for the vector
	// store and fails on it for the metadata store.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrDuplicateGame reports that an identical game (same players,
	// date, event, round and byte-identical PGN) is already stored.
	ErrDuplicateGame = errors.New("duplicate game")

	// ErrBadEncoding reports invalid UTF-8 in a PGN stream. It aborts
	// the whole stream; callers must pre-normalize legacy encodings.
	ErrBadEncoding = errors.New("invalid UTF-8 in PGN stream")
)

// NoMovesError reports a game with an empty move list. It is per-game:
// the ingest run logs it, skips the game, and continues.
type NoMovesError struct {
	// Game is the 1-based index of the game within the stream.
	Game int
}

func (e *NoMovesError) Error() string {
	return fmt.Sprintf("game %d has no moves", e.Game)
}

// IllegalMoveError reports a SAN token that is not legal in the position
// it was played from. It aborts the current game only; later games in the
// stream still parse.
type IllegalMoveError struct {
	// Game is the 1-based index of the game within the stream.
	Game int
	// Ply is the 1-based half-move index of the offending SAN.
	Ply int
	// SAN is the offending move text.
	SAN string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("game %d: illegal move %q at ply %d", e.Game, e.SAN, e.Ply)
}

// UserError represents an error with structured context for end users.
//
// It provides three levels of information:
//   - Message: what went wrong (user-facing error description)
//   - Cause: why it happened (diagnostic information)
//   - Fix: how to fix it (actionable suggestion)
type UserError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred.
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// ExitCode is the exit code to use when exiting due to this error.
	ExitCode int

	// Err is the underlying error (optional). Enables errors.Is/As.
	Err error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates an error with exit code ExitUser.
//
// Use this for bad arguments, malformed PGN input, and queue saturation.
func NewUserError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitUser, Err: err}
}

// NewInfraError creates an error with exit code ExitInfra.
//
// Use this for database, embedder, vector store, and agent failures.
func NewInfraError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInfra, Err: err}
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display.
//
// The output includes colored sections for Error (red/bold), Cause
// (yellow), and Fix (green). Color output respects the NO_COLOR
// environment variable and can be explicitly disabled with noColor.
// Empty Cause or Fix fields are omitted.
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON represents error information in JSON format.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the UserError to a JSON-serializable structure.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode,
	}
}

// FatalError prints the error and exits with the appropriate code.
//
// If the error is a UserError it uses Format() for colored output or
// ToJSON() for JSON mode. Other error types print a plain message and
// exit with ExitInfra. This function never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	var ue *UserError
	if errors.As(err, &ue) {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			// Encode error is intentionally ignored since we're about to exit.
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInfra)
}
