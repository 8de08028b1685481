// Package audit records build events for a work directory.
// Events are stored as JSON Lines (JSONL), appended as stages finish.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the event log inside a work directory.
const FileName = "events.jsonl"

// EventType classifies a build event.
type EventType string

const (
	EventInstall EventType = "install"
	EventBatch   EventType = "batch"
	EventExport  EventType = "export"
	EventVerify  EventType = "verify"
	EventError   EventType = "error"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Release   string    `json:"release,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Logger writes and reads the events of one work directory.
type Logger struct {
	workDir string
}

// NewLogger creates a new audit logger for workDir.
func NewLogger(workDir string) *Logger {
	return &Logger{workDir: workDir}
}

// Path returns the path to the JSONL event log.
func (l *Logger) Path() string {
	return filepath.Join(l.workDir, FileName)
}

// Log appends an event to the log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := os.MkdirAll(l.workDir, 0755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs an event.
func (l *Logger) LogEvent(eventType EventType, release, details string) error {
	return l.Log(Event{
		Type:    eventType,
		Release: release,
		Details: details,
	})
}

// Events reads all events in the order they were logged.
func (l *Logger) Events() ([]Event, error) {
	f, err := os.Open(l.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Remove deletes the audit log.
func (l *Logger) Remove() error {
	if err := os.Remove(l.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
