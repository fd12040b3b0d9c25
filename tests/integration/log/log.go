//go:build integration

// Package log prints progress of the integration suite.
package log

import (
	"fmt"
	"os"
)

// Status prints a status message for immediate display during tests.
func Status(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Step prints a numbered setup step.
func Step(n int, format string, args ...any) {
	Status(fmt.Sprintf("[%d] ", n)+format, args...)
}
