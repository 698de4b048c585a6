package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/studentid/internal/audit"
	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/repository"
	"github.com/saturnino-fabrica-de-software/studentid/internal/storage"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

// Extractor turns image bytes into a single face embedding
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*domain.FaceEmbedding, error)
	Model() string
}

type GalleryMatcher interface {
	Match(ctx context.Context, probe *domain.FaceEmbedding, gallery []domain.GalleryEntry) (*domain.MatchDecision, error)
}

type ImageStore interface {
	Save(ctx context.Context, dir string, data []byte) (ref, fingerprint string, err error)
}

type EmbeddingCache interface {
	Put(ctx context.Context, fingerprint string, emb *domain.FaceEmbedding)
	Invalidate(ctx context.Context, fingerprint string)
}

type AuditRecorder interface {
	Record(ctx context.Context, rec *domain.RecognitionLog) error
	Emit(ctx context.Context, event audit.Event)
}

type TokenIssuer interface {
	Issue(id token.Identity) (*token.Pair, error)
	Refresh(refreshToken string) (*token.Pair, error)
}

// RecognitionResult is what a recognition attempt hands back to the transport layer
type RecognitionResult struct {
	Decision *domain.MatchDecision
	Log      *domain.RecognitionLog
	Student  *domain.Student
	Tokens   *token.Pair
}

type RecognitionService struct {
	students  repository.StudentRepositoryInterface
	logs      repository.RecognitionLogRepositoryInterface
	extractor Extractor
	matcher   GalleryMatcher
	cache     EmbeddingCache
	images    ImageStore
	audit     AuditRecorder
	tokens    TokenIssuer
	timeout   time.Duration
	logger    *slog.Logger
}

func NewRecognitionService(
	students repository.StudentRepositoryInterface,
	logs repository.RecognitionLogRepositoryInterface,
	extractor Extractor,
	matcher GalleryMatcher,
	cache EmbeddingCache,
	images ImageStore,
	recorder AuditRecorder,
	tokens TokenIssuer,
	logger *slog.Logger,
) *RecognitionService {
	return &RecognitionService{
		students:  students,
		logs:      logs,
		extractor: extractor,
		matcher:   matcher,
		cache:     cache,
		images:    images,
		audit:     recorder,
		tokens:    tokens,
		timeout:   10 * time.Second,
		logger:    logger.With("component", "recognition"),
	}
}

// WithTimeout bounds a whole recognition attempt, probe extraction included
func (s *RecognitionService) WithTimeout(timeout time.Duration) *RecognitionService {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// Recognize identifies the student in probe. Every call that returns a result
// has written exactly one audit record; an audit failure is returned as an error
// and no token is issued.
func (s *RecognitionService) Recognize(ctx context.Context, probe domain.ProbeImage, clientIP string) (*RecognitionResult, error) {
	start := time.Now()

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	decision := s.decide(rctx, probe)
	cancel()
	decision.Elapsed = time.Since(start)

	// the attempt is recorded even when the caller went away mid-scan
	auditCtx := context.WithoutCancel(ctx)

	rec := domain.NewRecognitionLog(decision, s.saveProbe(auditCtx, probe), clientIP)
	if err := s.audit.Record(auditCtx, rec); err != nil {
		s.logger.Error("failed to record recognition attempt",
			"outcome", decision.Outcome,
			"error", err,
		)
		return nil, domain.ErrInternal.WithError(err)
	}

	s.logger.Info("recognition attempt",
		"log_id", rec.ID,
		"outcome", decision.Outcome,
		"confidence", decision.Confidence,
		"candidates", decision.Candidates,
		"skipped", decision.Skipped,
		"timed_out", decision.TimedOut,
		"elapsed_ms", decision.Elapsed.Milliseconds(),
	)

	result := &RecognitionResult{Decision: decision, Log: rec}
	if !decision.Accepted() {
		return result, nil
	}

	student, err := s.students.GetByID(ctx, *decision.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load matched student: %w", err)
	}

	pair, err := s.tokens.Issue(token.Identity{
		UserID:    student.UserID,
		Email:     student.Email,
		Role:      domain.RoleStudent,
		StudentID: &student.ID,
	})
	if err != nil {
		return nil, domain.ErrInternal.WithError(fmt.Errorf("issue token: %w", err))
	}

	result.Student = student
	result.Tokens = pair
	return result, nil
}

// decide never fails: every error becomes a classified decision.
func (s *RecognitionService) decide(ctx context.Context, probe domain.ProbeImage) *domain.MatchDecision {
	emb, err := s.extractor.Extract(ctx, probe.Data)
	if err != nil {
		return failed(0, err)
	}

	gallery, err := s.students.ListGallery(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return failed(0, domain.ErrTimeout.WithError(err))
		}
		return failed(0, domain.ErrInternal.WithError(fmt.Errorf("list gallery: %w", err)))
	}

	decision, err := s.matcher.Match(ctx, emb, gallery)
	if err != nil {
		return failed(len(gallery), err)
	}
	return decision
}

func failed(candidates int, err error) *domain.MatchDecision {
	d := &domain.MatchDecision{Candidates: candidates}
	d.Fail(outcomeFor(err), err)
	d.TimedOut = errors.Is(err, domain.ErrTimeout)
	return d
}

func outcomeFor(err error) domain.Outcome {
	switch {
	case errors.Is(err, domain.ErrNoFaceDetected):
		return domain.OutcomeNoFace
	case errors.Is(err, domain.ErrNoGalleryCandidates):
		return domain.OutcomeNoGallery
	case errors.Is(err, domain.ErrResourceExhausted):
		return domain.OutcomeResourceExhausted
	default:
		return domain.OutcomeError
	}
}

// saveProbe keeps a copy of the probe for the audit trail; failures only cost the copy
func (s *RecognitionService) saveProbe(ctx context.Context, probe domain.ProbeImage) string {
	if len(probe.Data) == 0 {
		return ""
	}
	ref, _, err := s.images.Save(ctx, storage.RecognitionLogsDir, probe.Data)
	if err != nil {
		s.logger.Warn("failed to store probe image", "error", err)
		return ""
	}
	return ref
}

// RegisterFace enrolls or replaces a student's reference image. The image must
// yield a face; the embedding computed here primes the gallery cache.
func (s *RecognitionService) RegisterFace(ctx context.Context, studentID uuid.UUID, data []byte) (*domain.Student, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	emb, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}

	ref, fingerprint, err := s.images.Save(ctx, storage.StudentFacesDir, data)
	if err != nil {
		return nil, fmt.Errorf("student %s: save face image: %w", studentID, err)
	}

	if err := s.students.UpdateFaceImage(ctx, studentID, ref, fingerprint); err != nil {
		return nil, err
	}

	if student.FaceFingerprint != "" && student.FaceFingerprint != fingerprint {
		s.cache.Invalidate(ctx, student.FaceFingerprint)
	}
	s.cache.Put(ctx, fingerprint, emb)

	student.FaceImageRef = ref
	student.FaceFingerprint = fingerprint

	s.audit.Emit(ctx, audit.Event{
		EventType: audit.EventFaceRegistered,
		StudentID: studentID.String(),
		Success:   true,
		Metadata: map[string]string{
			"fingerprint": fingerprint,
			"face_count":  fmt.Sprint(emb.FaceCount),
		},
	})

	s.logger.Info("face registered",
		"student_id", studentID,
		"fingerprint", fingerprint,
		"det_score", emb.DetScore,
	)

	return student, nil
}

func (s *RecognitionService) ListLogs(ctx context.Context, filter domain.RecognitionLogFilter) ([]domain.RecognitionLog, error) {
	return s.logs.List(ctx, filter)
}

// DashboardStats summarizes the gallery and today's recognition activity (UTC day)
func (s *RecognitionService) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	total, err := s.students.Count(ctx)
	if err != nil {
		return nil, err
	}

	withFaces, err := s.students.CountWithFaces(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	logStats, err := s.logs.Stats(ctx, today)
	if err != nil {
		return nil, err
	}

	return &domain.DashboardStats{
		TotalStudents:      total,
		RegisteredFaces:    withFaces,
		VerifiedToday:      logStats.VerifiedSince,
		FailedAttempts:     logStats.FailedAttempts,
		AverageScanTimeSec: math.Round(logStats.AvgProcessingTime/100) / 10,
	}, nil
}
