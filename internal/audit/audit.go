// Package audit records who changed which attendance sheet and when.
//
// Events are published to a queue by the API and written to Postgres by the
// worker (or by an in-process consumer when the memory queue is used).
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"sheetattend/internal/queue"
)

// Kind names the mutation that produced an event.
type Kind string

const (
	KindCommit Kind = "commit"
	KindOnSpot Kind = "onspot"
	KindUpload Kind = "upload"
	KindClose  Kind = "close"
)

// MessageType is the queue message type carrying audit events.
const MessageType = "audit"

// Event is one recorded mutation.
type Event struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"kind"`
	SheetID string         `json:"sheet_id"`
	Actor   string         `json:"actor"`
	Detail  map[string]any `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}

// Recorder accepts events. Implementations must not fail the caller's request.
type Recorder interface {
	Record(ctx context.Context, evt Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// QueueRecorder publishes events to a queue.
type QueueRecorder struct {
	q queue.Queue
}

// NewQueueRecorder creates a recorder publishing to q.
func NewQueueRecorder(q queue.Queue) *QueueRecorder {
	return &QueueRecorder{q: q}
}

// Record stamps the event and publishes it. Publish failures are logged.
func (r *QueueRecorder) Record(ctx context.Context, evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("audit: encode %s event: %v", evt.Kind, err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.q.Publish(pubCtx, queue.Message{Type: MessageType, Body: body}); err != nil {
		log.Printf("audit: publish %s event for %s: %v", evt.Kind, evt.SheetID, err)
	}
}

// Sink persists consumed events.
type Sink interface {
	Write(ctx context.Context, evt Event) error
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Write(_ context.Context, evt Event) error {
	log.Printf("audit: %s sheet=%s actor=%s detail=%v", evt.Kind, evt.SheetID, evt.Actor, evt.Detail)
	return nil
}

// Consume drains audit messages from q into sink until ctx is done.
func Consume(ctx context.Context, q queue.Queue, sink Sink) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		var evt Event
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("audit: decode message: %v", err)
			continue
		}
		if err := sink.Write(ctx, evt); err != nil {
			log.Printf("audit: write event %s failed: %v", evt.ID, err)
		}
	}
	return nil
}
