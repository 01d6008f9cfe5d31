// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package ui provides user interface utilities for the chessmate CLI.
//
// It offers color output helpers that respect the NO_COLOR environment
// variable. Colors are automatically disabled when output is not a TTY.
//
// Color usage guidelines:
//   - Red: errors, failures
//   - Yellow: warnings (degraded vector search, skipped games)
//   - Green: success, completions
//   - Cyan: informational messages
//   - Bold: headers, important labels
package ui

import (
	"fmt"

	"github.com/fatih/color"
)

// Pre-configured color instances for consistent CLI output.
var (
	// Red is used for error messages and failures.
	Red = color.New(color.FgRed)

	// Yellow is used for warnings.
	Yellow = color.New(color.FgYellow)

	// Green is used for success messages.
	Green = color.New(color.FgGreen)

	// Cyan is used for informational messages.
	Cyan = color.New(color.FgCyan)

	// Bold is used for headers and important labels.
	Bold = color.New(color.Bold)

	// Dim is used for less important details.
	Dim = color.New(color.Faint)
)

// Successf prints a green success line to stdout.
func Successf(format string, args ...any) {
	Green.Printf(format+"\n", args...)
}

// Warnf prints a yellow warning line to stdout.
func Warnf(format string, args ...any) {
	Yellow.Printf(format+"\n", args...)
}

// Infof prints a cyan informational line to stdout.
func Infof(format string, args ...any) {
	Cyan.Printf(format+"\n", args...)
}

// Headerf prints a bold header line to stdout.
func Headerf(format string, args ...any) {
	Bold.Printf(format+"\n", args...)
}

// Detailf prints a dim detail line to stdout.
func Detailf(format string, args ...any) {
	fmt.Print("   ")
	Dim.Printf(format+"\n", args...)
}
