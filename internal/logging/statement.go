package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// StatementLog is one executed SQL statement.
type StatementLog struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Backend    string    `json:"backend"`
	Kind       string    `json:"kind"`
	SQL        string    `json:"sql"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Code       string    `json:"code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// StatementLogger writes statement entries as JSON lines to a file and,
// optionally, a short human readable line to the console.
type StatementLogger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console io.Writer
}

var defaultStatements = &StatementLogger{}

// Statements returns the process statement logger. It is disabled until an
// output is configured.
func Statements() *StatementLogger {
	return defaultStatements
}

// SetOutput starts appending entries to path.
func (l *StatementLogger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	l.enabled = true
	return nil
}

// SetConsole mirrors entries to w. A nil writer disables console output.
func (l *StatementLogger) SetConsole(w io.Writer) {
	l.mu.Lock()
	l.console = w
	l.enabled = l.file != nil || w != nil
	l.mu.Unlock()
}

// Enabled reports whether any output is configured.
func (l *StatementLogger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Log writes a statement entry.
func (l *StatementLogger) Log(entry *StatementLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if l.console != nil {
		status := "ok"
		if !entry.Success {
			status = "failed"
		}
		fmt.Fprintf(l.console, "[sql] %s %s %s %dms %s\n",
			status, entry.Backend, entry.Kind, entry.DurationMs, entry.SQL)
		if entry.Error != "" {
			fmt.Fprintf(l.console, "[sql]   error (code %s): %s\n", entry.Code, entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file and disables file output.
func (l *StatementLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	l.enabled = l.console != nil
}
