package ingestion

import (
	"log/slog"
	"sync"
)

// DefaultReporterCapacity is the size of the error channel.
const DefaultReporterCapacity = 64

// ErrorEvent is one failure forwarded by a worker. Source names what failed,
// usually the partition's file path or endpoint.
type ErrorEvent struct {
	Source string
	Err    error
}

// Reporter drains error events on a single goroutine and logs each one.
// Report blocks while the channel is full, so a slow reporter slows down
// failing workers only.
type Reporter struct {
	events    chan ErrorEvent
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger

	// written by the drain goroutine only, read after done is closed
	received []ErrorEvent
}

// NewReporter starts a reporter with a channel of the given capacity.
func NewReporter(capacity int, logger *slog.Logger) *Reporter {
	if capacity < 1 {
		capacity = DefaultReporterCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reporter{
		events: make(chan ErrorEvent, capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.drain()
	return r
}

func (r *Reporter) drain() {
	defer close(r.done)
	for ev := range r.events {
		r.logger.Error("pipeline error", "source", ev.Source, "err", ev.Err)
		r.received = append(r.received, ev)
	}
}

// Report queues an event. It must not be called after Close.
func (r *Reporter) Report(ev ErrorEvent) {
	r.events <- ev
}

// Close tells the reporter no more events will arrive. Safe to call more
// than once.
func (r *Reporter) Close() {
	r.closeOnce.Do(func() { close(r.events) })
}

// Wait blocks until every queued event has been logged. It returns only
// after Close.
func (r *Reporter) Wait() {
	<-r.done
}

// Count is the number of events logged. Call it after Wait.
func (r *Reporter) Count() int {
	<-r.done
	return len(r.received)
}

// Events returns the logged events in arrival order. Call it after Wait.
func (r *Reporter) Events() []ErrorEvent {
	<-r.done
	return append([]ErrorEvent(nil), r.received...)
}
