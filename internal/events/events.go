package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSyncStarted   = "record_sync_started"
	EventSyncCompleted = "record_sync_completed"
	EventSyncFailed    = "record_sync_failed"
	EventBulkStarted   = "bulk_session_started"
	EventBulkFinished  = "bulk_session_finished"
	EventCronRun       = "cron_job_run"
)

// SyncEventPayload describes the minimal record snapshot for event consumers.
type SyncEventPayload struct {
	RecordID   int64     `json:"record_id"`
	GroupID    int64     `json:"group_id"`
	SourceRef  string    `json:"source_ref,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// BulkEventPayload describes bulk session lifecycle events.
type BulkEventPayload struct {
	SessionID string `json:"session_id"`
	GroupID   int64  `json:"group_id"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}

// CronEventPayload describes a finished cron execution.
type CronEventPayload struct {
	JobID  int64  `json:"job_id"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
