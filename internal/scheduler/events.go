package scheduler

import (
	"time"

	"pixvid/internal/domain"
)

// EventType enumerates scheduler state-change notifications.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventStage     EventType = "stage"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventRequeued  EventType = "requeued"
	EventCancelled EventType = "cancelled"
)

// Event describes one job state change. Consumers (websocket feed, webhook
// notifier) depend on the scheduler, never the reverse.
type Event struct {
	Type       EventType        `json:"type"`
	JobID      string           `json:"job_id"`
	UserID     string           `json:"user_id"`
	Status     domain.JobStatus `json:"status"`
	Progress   int              `json:"progress"`
	Stage      string           `json:"stage,omitempty"`
	Error      string           `json:"error,omitempty"`
	RetryCount int              `json:"retry_count,omitempty"`
	At         time.Time        `json:"at"`
}

// Terminal reports whether the event marks the end of a job's run.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed || e.Type == EventCancelled
}

const subscriberBuffer = 64

// Subscribe registers an event channel. Slow subscribers lose events rather
// than blocking the scheduler. The returned func unsubscribes.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan Event, subscriberBuffer)
	e.subs[id] = ch
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

// publish must be called with e.mu held.
func (e *Engine) publish(ev Event) {
	ev.At = time.Now().UTC()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.dropped++
		}
	}
}
