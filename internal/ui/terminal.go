package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is attached to a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor decides whether output should carry ANSI colors.
//
// Precedence, highest first:
//   - NO_COLOR set (any value, even empty): no color (https://no-color.org)
//   - CLICOLOR=0: no color
//   - CLICOLOR_FORCE set and not "0": color even without a TTY
//   - otherwise: color only when stdout is a TTY
func ShouldUseColor() bool {
	// termenv treats an empty NO_COLOR as unset; no-color.org says any
	// assignment counts, so check presence first.
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if termenv.EnvNoColor() {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether icons/emoji are appropriate.
// MEMBANK_NO_EMOJI=1 disables them; otherwise follows the TTY check.
func ShouldUseEmoji() bool {
	if os.Getenv("MEMBANK_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// IsAgentMode reports whether output is being consumed by an agent
// rather than a human. Agents get plain, parseable output: no glamour
// rendering, no truncation, no pager. Set explicitly with
// MEMBANK_AGENT=1; piped output (no TTY) implies it.
func IsAgentMode() bool {
	if v := os.Getenv("MEMBANK_AGENT"); v == "1" || v == "true" {
		return true
	}
	return !IsTerminal()
}
