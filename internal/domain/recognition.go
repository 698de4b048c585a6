package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeAccepted          Outcome = "ACCEPTED"
	OutcomeNoFace            Outcome = "NO_FACE"
	OutcomeNoMatch           Outcome = "NO_MATCH"
	OutcomeNoGallery         Outcome = "NO_GALLERY"
	OutcomeResourceExhausted Outcome = "RESOURCE_EXHAUSTED"
	OutcomeError             Outcome = "ERROR"
)

// ProbeImage é a imagem capturada que será comparada com a galeria
type ProbeImage struct {
	Data        []byte
	ContentType string
}

// FaceEmbedding é imutável depois de produzido
type FaceEmbedding struct {
	Vector    []float64 `json:"-"`
	DetScore  float64   `json:"det_score"`
	FaceCount int       `json:"face_count"`
}

// MatchDecision é o resultado de uma tentativa de reconhecimento
type MatchDecision struct {
	Outcome    Outcome       `json:"outcome"`
	StudentID  *uuid.UUID    `json:"student_id,omitempty"`
	Confidence float64       `json:"confidence"`
	Elapsed    time.Duration `json:"-"`
	TimedOut   bool          `json:"timed_out"`
	Candidates int           `json:"candidates"`
	Scanned    int           `json:"scanned"`
	Skipped    int           `json:"skipped"`
	ErrorCode  *string       `json:"error_code,omitempty"`
	Reason     string        `json:"reason,omitempty"`
}

func (d *MatchDecision) Accepted() bool {
	return d.Outcome == OutcomeAccepted
}

// Fail preenche outcome e código a partir do erro classificado
func (d *MatchDecision) Fail(outcome Outcome, err error) {
	d.Outcome = outcome
	d.Confidence = 0
	d.StudentID = nil

	var appErr *AppError
	if errors.As(err, &appErr) {
		code := appErr.Code
		d.ErrorCode = &code
		d.Reason = appErr.Message
		return
	}
	code := ErrInternal.Code
	d.ErrorCode = &code
	if err != nil {
		d.Reason = err.Error()
	}
}

// RecognitionLog representa um registro de auditoria (append-only)
type RecognitionLog struct {
	ID               uuid.UUID  `json:"id"`
	StudentID        *uuid.UUID `json:"student_id,omitempty"`
	Outcome          Outcome    `json:"outcome"`
	Success          bool       `json:"success"`
	Confidence       float64    `json:"confidence"`
	ProcessingTimeMs *int64     `json:"processing_time_ms,omitempty"`
	TimedOut         bool       `json:"timed_out"`
	Candidates       int        `json:"candidates"`
	Skipped          int        `json:"skipped"`
	ErrorCode        *string    `json:"error_code,omitempty"`
	ImageRef         string     `json:"image,omitempty"`
	ClientIP         string     `json:"client_ip,omitempty"`
	CreatedAt        time.Time  `json:"timestamp"`
}

// NewRecognitionLog converte a decisão no registro persistido
func NewRecognitionLog(d *MatchDecision, imageRef, clientIP string) *RecognitionLog {
	ms := d.Elapsed.Milliseconds()
	return &RecognitionLog{
		ID:               uuid.New(),
		StudentID:        d.StudentID,
		Outcome:          d.Outcome,
		Success:          d.Accepted(),
		Confidence:       d.Confidence,
		ProcessingTimeMs: &ms,
		TimedOut:         d.TimedOut,
		Candidates:       d.Candidates,
		Skipped:          d.Skipped,
		ErrorCode:        d.ErrorCode,
		ImageRef:         imageRef,
		ClientIP:         clientIP,
		CreatedAt:        time.Now().UTC(),
	}
}

// RecognitionLogFilter filtra a listagem de registros
type RecognitionLogFilter struct {
	Success   *bool
	Outcome   *Outcome
	StudentID *uuid.UUID
	Since     *time.Time
	Limit     int
	Offset    int
}

// DashboardStats resume a atividade de reconhecimento
type DashboardStats struct {
	TotalStudents      int     `json:"total_students"`
	RegisteredFaces    int     `json:"registered_faces"`
	VerifiedToday      int     `json:"verified_today"`
	FailedAttempts     int     `json:"failed_attempts"`
	AverageScanTimeSec float64 `json:"average_scan_time"`
}
