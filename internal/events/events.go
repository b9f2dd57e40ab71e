// Package events carries reconciliation lifecycle events to audit sinks.
// Delivery is fire-and-forget: a sink that fails only logs.
package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"orphanscan/internal/logger"
	"orphanscan/internal/orphans"
)

// Kind names a lifecycle transition.
type Kind string

const (
	RecordIgnored  Kind = "record_ignored"
	RecordDeleted  Kind = "record_deleted"
	RecordRestored Kind = "record_restored"
	RecordPending  Kind = "record_pending"
)

// ForStatus returns the event kind announcing a move into status.
func ForStatus(s orphans.Status) Kind {
	switch s {
	case orphans.StatusIgnored:
		return RecordIgnored
	case orphans.StatusDeleted:
		return RecordDeleted
	case orphans.StatusRestored:
		return RecordRestored
	default:
		return RecordPending
	}
}

// Event is one applied transition.
type Event struct {
	Kind     Kind      `json:"kind"`
	RecordID int64     `json:"record_id"`
	Actor    string    `json:"actor"`
	Reason   string    `json:"reason"`
	Table    string    `json:"orphan_table"`
	OrphanID int64     `json:"orphan_id"`
	Time     time.Time `json:"time"`
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// Publish hands e to sink and logs a delivery failure instead of returning it.
func Publish(ctx context.Context, sink Sink, e Event) {
	if sink == nil {
		return
	}
	if err := sink.Emit(ctx, e); err != nil {
		logger.Errorf(ctx, "emit %s for record %d: %v", e.Kind, e.RecordID, err)
	}
}

// LogSink writes every event as a structured audit log line.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Emit(ctx context.Context, e Event) error {
	l := s.Logger
	if l == nil {
		l = log.StandardLogger()
	}
	l.WithContext(ctx).WithFields(log.Fields{
		"event":        string(e.Kind),
		"record_id":    e.RecordID,
		"actor":        e.Actor,
		"orphan_table": e.Table,
		"orphan_id":    e.OrphanID,
	}).Info(e.Reason)
	return nil
}

// Multi fans an event out to every sink. All sinks are tried; the first
// error is returned.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
