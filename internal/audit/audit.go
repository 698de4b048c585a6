package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventRecognitionAttempt EventType = "RECOGNITION_ATTEMPT"
	EventFaceRegistered     EventType = "FACE_REGISTERED"
	EventLogin              EventType = "LOGIN"
)

// Event represents an audit event
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	EventType  EventType         `json:"event_type"`
	StudentID  string            `json:"student_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Confidence float64           `json:"confidence"`
	Model      string            `json:"model,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IPAddress  string            `json:"ip_address,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("outcome", event.Outcome),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// LogWriter persists recognition records; satisfied by repository.RecognitionLogRepository.
type LogWriter interface {
	Create(ctx context.Context, log *domain.RecognitionLog) error
}

// Recorder is the append-only audit log of recognition attempts. The durable
// write is authoritative; the event stream is best effort.
type Recorder struct {
	logs   LogWriter
	events Logger
	model  string
}

func NewRecorder(logs LogWriter, events Logger, model string) *Recorder {
	if events == nil {
		events = &NoOpLogger{}
	}
	return &Recorder{logs: logs, events: events, model: model}
}

// Record appends exactly one record for a recognition attempt.
func (r *Recorder) Record(ctx context.Context, rec *domain.RecognitionLog) error {
	if err := r.logs.Create(ctx, rec); err != nil {
		return fmt.Errorf("record recognition attempt: %w", err)
	}

	_ = r.events.Log(ctx, RecognitionEvent(rec, r.model))
	return nil
}

// Emit forwards a non-recognition event to the event stream only.
func (r *Recorder) Emit(ctx context.Context, event Event) {
	if event.Model == "" {
		event.Model = r.model
	}
	_ = r.events.Log(ctx, event)
}

// RecognitionEvent converts a persisted record into a stream event.
func RecognitionEvent(rec *domain.RecognitionLog, model string) Event {
	event := Event{
		ID:         rec.ID,
		Timestamp:  rec.CreatedAt,
		EventType:  EventRecognitionAttempt,
		Outcome:    string(rec.Outcome),
		Confidence: rec.Confidence,
		Model:      model,
		Success:    rec.Success,
		IPAddress:  rec.ClientIP,
		Metadata: map[string]string{
			"candidates": fmt.Sprint(rec.Candidates),
			"skipped":    fmt.Sprint(rec.Skipped),
			"timed_out":  fmt.Sprint(rec.TimedOut),
		},
	}
	if rec.StudentID != nil {
		event.StudentID = rec.StudentID.String()
	}
	if rec.ErrorCode != nil {
		event.Error = *rec.ErrorCode
	}
	if rec.ProcessingTimeMs != nil {
		event.Metadata["processing_time_ms"] = fmt.Sprint(*rec.ProcessingTimeMs)
	}
	return event
}
