// Package audit writes a structured trail of privileged App Ops mutations.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/appops/pkg/auth"
)

// EventType defines the category of the audit event.
type EventType string

const (
	EventModeChange EventType = "MODE_CHANGE"
	EventReset      EventType = "MODE_RESET"
	EventReload     EventType = "RELOAD"
	EventPackage    EventType = "PACKAGE"
	EventDenied     EventType = "DENIED"
)

// Event represents a structured audit record.
type Event struct {
	ID           string         `json:"id"`
	ActorUID     int            `json:"actor_uid"`
	ActorPackage string         `json:"actor_package"`
	Type         EventType      `json:"type"`
	Action       string         `json:"action"`
	Resource     string         `json:"resource"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Logger defines the interface for recording audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

// logger implements Logger, writing JSON lines to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	now    func() time.Time
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, now: time.Now}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := newEvent(ctx, eventType, action, resource, metadata, l.now())

	l.mu.Lock()
	defer l.mu.Unlock()

	bytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(bytes, '\n')...))
	return err
}

func newEvent(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any, now time.Time) Event {
	actor := auth.System()
	if c, err := auth.CallerFrom(ctx); err == nil {
		actor = c
	}
	return Event{
		ID:           uuid.New().String(),
		ActorUID:     actor.UID,
		ActorPackage: actor.Package,
		Type:         eventType,
		Action:       action,
		Resource:     resource,
		Timestamp:    now.UTC(),
		Metadata:     metadata,
	}
}

// MemoryLogger keeps events in memory. Useful in tests and for the debug
// endpoint.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (m *MemoryLogger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	ev := newEvent(ctx, eventType, action, resource, metadata, time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, EventType, string, string, map[string]any) error { return nil }
