// Package debug provides env-gated diagnostic logging.
//
// Debug output goes to stderr and is off unless MEMBANK_DEBUG is set
// (or a command enables verbose mode). Event logging appends structured
// lines to .membank/events.log for post-hoc agent auditing.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	enabled     = os.Getenv("MEMBANK_DEBUG") != ""
	verboseMode = false
	quietMode   = false
	logMutex    sync.Mutex
)

// Enabled reports whether debug output is active.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose enables verbose/debug output
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet enables quiet mode (suppress non-essential output)
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet returns true if quiet mode is enabled
func IsQuiet() bool {
	return quietMode
}

// Logf writes a debug line to stderr when debug output is active.
func Logf(format string, args ...interface{}) {
	if enabled || verboseMode {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// PrintNormal prints output unless quiet mode is enabled.
// Use this for informational output that agents may want suppressed.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// LogEvent appends an event to .membank/events.log.
// Format: TIMESTAMP|EVENT_CODE|BLOCK_ID|AGENT_ID|DETAILS
func LogEvent(eventCode, blockID, details string) {
	root, err := findProjectRoot()
	if err != nil {
		// Silent fail when not inside a membank project.
		return
	}

	logPath := filepath.Join(root, ".membank", "events.log")

	if blockID == "" {
		blockID = "none"
	}
	agentID := os.Getenv("MEMBANK_AGENT_ID")
	if agentID == "" {
		agentID = os.Getenv("USER")
		if agentID == "" {
			agentID = "unknown"
		}
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	entry := fmt.Sprintf("%s|%s|%s|%s|%s\n", timestamp, eventCode, blockID, agentID, details)

	logMutex.Lock()
	defer logMutex.Unlock()

	_ = os.MkdirAll(filepath.Dir(logPath), 0o755)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// Logging must never interrupt an operation.
		return
	}
	defer file.Close()

	_, _ = file.WriteString(entry)
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		markerDir := filepath.Join(dir, ".membank")
		if info, err := os.Stat(markerDir); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a membank project")
		}
		dir = parent
	}
}
