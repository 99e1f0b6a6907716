package printer

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/appraise/pkg/ledger"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		green.Printf("✓ %s", msg)
	} else {
		green.Print(msg)
	}
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		yellow.Printf("⚠️  %s", msg)
	} else {
		yellow.Print(msg)
	}
}

// Error creates a formatted error message with title, explanation, and suggestions
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func Error(title string, explanation string, suggestions []string) error {
	// Print title in red to stderr
	red.Fprintf(os.Stderr, "%s\n\n", title)

	// Print explanation
	fmt.Fprintf(os.Stderr, "%s\n", explanation)

	printSuggestions(suggestions)

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// ErrorWithContext creates a formatted error with context details
// Prints the formatted error to stderr with colors and returns a simple error for Cobra
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	// Print title in red to stderr
	red.Fprintf(os.Stderr, "%s\n\n", title)

	// Print explanation
	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	// Print context details in a stable order
	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(os.Stderr, "\n")
		for _, key := range keys {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", key, context[key])
		}
	}

	printSuggestions(suggestions)

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

func printSuggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "\n")
	if len(suggestions) == 1 {
		fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		return
	}

	fmt.Fprintf(os.Stderr, "Either:\n")
	for i, suggestion := range suggestions {
		fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
	}
}

// Agreement renders a consensus agreement label: high in green, medium in
// yellow, low in red.
func Agreement(a ledger.Agreement) string {
	switch a {
	case ledger.AgreementHigh:
		return green.Sprint(string(a))
	case ledger.AgreementMedium:
		return yellow.Sprint(string(a))
	default:
		return red.Sprint(string(a))
	}
}

// AgentStatus renders an agent status in the same palette as Agreement.
func AgentStatus(s ledger.AgentStatus) string {
	switch s {
	case ledger.AgentStatusActive:
		return green.Sprint(string(s))
	case ledger.AgentStatusUnhealthy:
		return yellow.Sprint(string(s))
	default:
		return red.Sprint(string(s))
	}
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Println(a...)
}
