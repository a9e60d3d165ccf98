// Package events fans job-progress updates out to subscribers — in
// practice, the WebSocket handlers under internal/api — so a worker
// reporting update_progress doesn't need to know who, if anyone, is
// watching. Grounded on the teacher's internal/events bus: a channel per
// subscriber, non-blocking publish that drops and logs on a full channel
// rather than stalling the publisher, and cleanup on unsubscribe.
package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/tidecast/mediapipe/internal/logger"
)

// JobProgressEvent is pushed once per update_progress/complete/fail call
// made against the job queue (spec.md §4.G, §4.F's progress callback
// contract), and is what /api/jobs/ws fans out to connected clients.
type JobProgressEvent struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Step      string    `json:"step,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBufferSize = 32

// Bus is an in-process pub/sub for JobProgressEvent. The zero value is not
// usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan JobProgressEvent
	nextID      int
}

// New builds an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]chan JobProgressEvent)}
}

// Subscribe registers a new listener and returns its id (for Unsubscribe)
// and the channel it will receive events on.
func (b *Bus) Subscribe() (string, <-chan JobProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := "sub-" + strconv.Itoa(b.nextID)
	ch := make(chan JobProgressEvent, subscriberBufferSize)
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel. Safe to call more
// than once or with an unknown id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish fans evt out to every current subscriber. A subscriber whose
// channel is full is skipped rather than blocking the publisher — the
// worker pool calling this must never stall on a slow WebSocket client.
func (b *Bus) Publish(evt JobProgressEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			logger.Named("events").Warn("subscriber channel full, dropping event", "subscriber", id, "job_id", evt.JobID)
		}
	}
}

// SubscriberCount reports the current number of live subscribers (test and
// metrics helper).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
