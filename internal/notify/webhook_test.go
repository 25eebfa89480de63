package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pixvid/internal/domain"
	"pixvid/internal/scheduler"
)

func terminalEvent() scheduler.Event {
	return scheduler.Event{
		Type:     scheduler.EventCompleted,
		JobID:    "job-1",
		UserID:   "u1",
		Status:   domain.JobStatusCompleted,
		Progress: 100,
		At:       time.Now().UTC(),
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zerolog.Nop())
	n.Notify(context.Background(), terminalEvent())

	if got.JobID != "job-1" || got.Status != "completed" || got.Progress != 100 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookNotifierRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, zerolog.Nop())
	n.Notify(context.Background(), terminalEvent())
	if calls.Load() < 2 {
		t.Fatalf("calls = %d, want retry after 500", calls.Load())
	}
}

func TestWebhookNotifierSwallowsFailure(t *testing.T) {
	// Endpoint is unreachable; Notify must return without panicking.
	n := NewWebhookNotifier("http://127.0.0.1:1", zerolog.Nop())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Notify(context.Background(), terminalEvent())
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatalf("Notify() hung on unreachable endpoint")
	}
}

func TestPumpForwardsOnlyTerminalEvents(t *testing.T) {
	events := make(chan scheduler.Event, 4)
	events <- scheduler.Event{Type: scheduler.EventProgress, JobID: "job-1"}
	events <- scheduler.Event{Type: scheduler.EventCompleted, JobID: "job-1", Status: domain.JobStatusCompleted}
	close(events)

	var notified []scheduler.Event
	n := notifierFunc(func(_ context.Context, ev scheduler.Event) {
		notified = append(notified, ev)
	})
	Pump(context.Background(), events, n)

	if len(notified) != 1 || notified[0].Type != scheduler.EventCompleted {
		t.Fatalf("notified = %+v, want single completed event", notified)
	}
}

type notifierFunc func(ctx context.Context, ev scheduler.Event)

func (f notifierFunc) Notify(ctx context.Context, ev scheduler.Event) { f(ctx, ev) }
