package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/studentid/internal/audit"
	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/repository"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockStudentRepository struct {
	mock.Mock
}

func (m *MockStudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Student), args.Error(1)
}

func (m *MockStudentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Student, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Student), args.Error(1)
}

func (m *MockStudentRepository) ListGallery(ctx context.Context) ([]domain.GalleryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.GalleryEntry), args.Error(1)
}

func (m *MockStudentRepository) UpdateFaceImage(ctx context.Context, id uuid.UUID, imageRef, fingerprint string) error {
	return m.Called(ctx, id, imageRef, fingerprint).Error(0)
}

func (m *MockStudentRepository) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStudentRepository) CountWithFaces(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStudentRepository) Create(ctx context.Context, student *domain.Student) error {
	return m.Called(ctx, student).Error(0)
}

type MockLogRepository struct {
	mock.Mock
}

func (m *MockLogRepository) Create(ctx context.Context, log *domain.RecognitionLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockLogRepository) List(ctx context.Context, filter domain.RecognitionLogFilter) ([]domain.RecognitionLog, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RecognitionLog), args.Error(1)
}

func (m *MockLogRepository) Stats(ctx context.Context, since time.Time) (*repository.LogStats, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.LogStats), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte) (*domain.FaceEmbedding, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaceEmbedding), args.Error(1)
}

func (m *MockExtractor) Model() string { return "test-model" }

type MockMatcher struct {
	mock.Mock
}

func (m *MockMatcher) Match(ctx context.Context, probe *domain.FaceEmbedding, gallery []domain.GalleryEntry) (*domain.MatchDecision, error) {
	args := m.Called(ctx, probe, gallery)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MatchDecision), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Put(ctx context.Context, fingerprint string, emb *domain.FaceEmbedding) {
	m.Called(ctx, fingerprint, emb)
}

func (m *MockCache) Invalidate(ctx context.Context, fingerprint string) {
	m.Called(ctx, fingerprint)
}

type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) Save(ctx context.Context, dir string, data []byte) (string, string, error) {
	args := m.Called(ctx, dir, data)
	return args.String(0), args.String(1), args.Error(2)
}

type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(id token.Identity) (*token.Pair, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Pair), args.Error(1)
}

func (m *MockTokenIssuer) Refresh(refreshToken string) (*token.Pair, error) {
	args := m.Called(refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*token.Pair), args.Error(1)
}

// captureRecorder keeps every audit record and event in memory
type captureRecorder struct {
	mu      sync.Mutex
	records []*domain.RecognitionLog
	events  []audit.Event
	err     error
}

func (c *captureRecorder) Record(_ context.Context, rec *domain.RecognitionLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *captureRecorder) Emit(_ context.Context, event audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// memStudents is an in-memory identity store for end-to-end tests
type memStudents struct {
	mu       sync.Mutex
	students map[uuid.UUID]*domain.Student
	seq      int
	order    map[uuid.UUID]int
}

func newMemStudents() *memStudents {
	return &memStudents{students: map[uuid.UUID]*domain.Student{}, order: map[uuid.UUID]int{}}
}

func (r *memStudents) add(matric string) *domain.Student {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &domain.Student{ID: uuid.New(), UserID: uuid.New(), Email: matric + "@uni.edu", MatricNumber: matric}
	r.students[s.ID] = s
	r.seq++
	r.order[s.ID] = r.seq
	return s
}

func (r *memStudents) GetByID(_ context.Context, id uuid.UUID) (*domain.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return nil, domain.ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memStudents) GetByUserID(_ context.Context, userID uuid.UUID) (*domain.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrStudentNotFound
}

func (r *memStudents) ListGallery(_ context.Context) ([]domain.GalleryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []domain.GalleryEntry
	for _, s := range r.students {
		if s.HasFace() {
			entries = append(entries, domain.GalleryEntry{
				StudentID:    s.ID,
				MatricNumber: s.MatricNumber,
				ImageRef:     s.FaceImageRef,
				Fingerprint:  s.FaceFingerprint,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return r.order[entries[i].StudentID] < r.order[entries[j].StudentID] })
	return entries, nil
}

func (r *memStudents) UpdateFaceImage(_ context.Context, id uuid.UUID, imageRef, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[id]
	if !ok {
		return domain.ErrStudentNotFound
	}
	s.FaceImageRef, s.FaceFingerprint = imageRef, fingerprint
	return nil
}

func (r *memStudents) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.students), nil
}

func (r *memStudents) CountWithFaces(ctx context.Context) (int, error) {
	entries, err := r.ListGallery(ctx)
	return len(entries), err
}

func (r *memStudents) Create(_ context.Context, student *domain.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[student.ID] = student
	r.seq++
	r.order[student.ID] = r.seq
	return nil
}
