// Package audit emits an immutable record of every state-changing operation
// attempt, regardless of outcome.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one audit entry. Records are append-only; this core never
// mutates or deletes them.
type Record struct {
	ID            string    `json:"id"`
	Operation     string    `json:"operation"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	BusinessID    string    `json:"business_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Success       bool      `json:"success"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	At            time.Time `json:"at"`
}

// Sink persists audit records for the external compliance pipeline.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// Recorder fans records out to its sinks. Sink failures are logged and
// swallowed: an audit write must never block a financial operation that is
// already committed to the gateway.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRecorder creates a recorder writing to the given sinks.
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks, logger: logger}
}

// Record writes exactly one entry per invocation, assigning the ID and
// timestamp if unset.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, rec); err != nil {
			r.logger.Error("audit write failed",
				"operation", rec.Operation,
				"entity_id", rec.EntityID,
				"error", err,
			)
		}
	}
}

// MemorySink keeps records in memory, queryable for tests and the demo API.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of all recorded entries.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Record, len(s.records))
	copy(result, s.records)
	return result
}

// ByEntity returns entries for a specific entity ID.
func (s *MemorySink) ByEntity(entityID string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Record
	for _, rec := range s.records {
		if rec.EntityID == entityID {
			result = append(result, rec)
		}
	}
	return result
}

// SlogSink emits each record as a structured log line.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps a logger as an audit sink.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Write(ctx context.Context, rec Record) error {
	s.logger.Info("audit",
		"audit_id", rec.ID,
		"operation", rec.Operation,
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
		"business_id", rec.BusinessID,
		"user_id", rec.UserID,
		"correlation_id", rec.CorrelationID,
		"success", rec.Success,
		"error_code", rec.ErrorCode,
	)
	return nil
}
