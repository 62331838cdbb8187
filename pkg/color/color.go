// Package color provides terminal color output for draudit.
// It respects the NO_COLOR environment variable (https://no-color.org/)
// and disables itself when stdout is not a terminal.
package color

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// Init applies the --no-color flag and environment on top of fatih/color's
// terminal detection.
func Init(noColorFlag bool) {
	if noColorFlag {
		color.NoColor = true
		return
	}
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		color.NoColor = true
	}
	if os.Getenv("TERM") == "dumb" {
		color.NoColor = true
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	return !color.NoColor
}

// Disable turns off color output.
func Disable() { color.NoColor = true }

// Enable turns on color output.
func Enable() { color.NoColor = false }

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// Success formats a success message in green.
func Success(s string) string { return green(s) }

// Successf formats a success message with printf-style arguments.
func Successf(format string, args ...any) string { return green(fmt.Sprintf(format, args...)) }

// Error formats an error message in red.
func Error(s string) string { return red(s) }

// Errorf formats an error message with printf-style arguments.
func Errorf(format string, args ...any) string { return red(fmt.Sprintf(format, args...)) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return yellow(s) }

// Info formats an informational message in cyan.
func Info(s string) string { return cyan(s) }

// Hash formats a content hash in cyan.
func Hash(s string) string { return cyan(s) }

// Header formats a header in bold.
func Header(s string) string { return bold(s) }

// Dim formats secondary information.
func Dim(s string) string { return faint(s) }

// Outcome colors a replay outcome: green for match, yellow for mismatch and
// red for anything else.
func Outcome(outcome string) string {
	switch outcome {
	case "match":
		return green(outcome)
	case "mismatch":
		return yellow(outcome)
	default:
		return red(outcome)
	}
}
