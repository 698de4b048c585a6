package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingExtractor embeds by mapping image bytes to a fixed result and
// counts every call.
type countingExtractor struct {
	calls   atomic.Int32
	delay   time.Duration
	results map[string]*domain.FaceEmbedding
	errs    map[string]error
}

func (e *countingExtractor) Extract(ctx context.Context, data []byte) (*domain.FaceEmbedding, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := e.errs[string(data)]; ok {
		return nil, err
	}
	if emb, ok := e.results[string(data)]; ok {
		return emb, nil
	}
	return &domain.FaceEmbedding{Vector: []float64{float64(len(data)), 1}, DetScore: 0.9, FaceCount: 1}, nil
}

func (e *countingExtractor) Model() string { return "test-model" }

type mapLoader struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (l *mapLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, ok := l.files[ref]
	if !ok {
		return nil, storage.ErrImageNotFound
	}
	return data, nil
}

type memStore struct {
	mu      sync.Mutex
	entries map[string]*domain.FaceEmbedding
	deletes int
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]*domain.FaceEmbedding{}}
}

func (s *memStore) Get(ctx context.Context, model, fingerprint string) (*domain.FaceEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emb, ok := s.entries[model+":"+fingerprint]; ok {
		return emb, nil
	}
	return nil, ErrCacheMiss
}

func (s *memStore) Set(ctx context.Context, model, fingerprint string, emb *domain.FaceEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[model+":"+fingerprint] = emb
	return nil
}

func (s *memStore) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for k := range s.entries {
		if len(k) >= len(fingerprint) && k[len(k)-len(fingerprint):] == fingerprint {
			delete(s.entries, k)
		}
	}
	return nil
}

func galleryImage(content string) (ref, fingerprint string, data []byte) {
	data = []byte(content)
	fingerprint = storage.Fingerprint(data)
	return "student_faces/" + fingerprint + ".jpg", fingerprint, data
}

func newTestCache(t *testing.T, extractor *countingExtractor, loader *mapLoader, store Store) *EmbeddingCache {
	t.Helper()
	c, err := NewEmbeddingCache(16, extractor, loader, store, testLogger())
	require.NoError(t, err)
	return c
}

func TestEmbeddingCache_ResolveIsIdempotent(t *testing.T) {
	ref, fp, data := galleryImage("alice")
	extractor := &countingExtractor{}
	loader := &mapLoader{files: map[string][]byte{ref: data}}
	c := newTestCache(t, extractor, loader, nil)

	first, err := c.Resolve(context.Background(), fp, ref)
	require.NoError(t, err)
	second, err := c.Resolve(context.Background(), fp, ref)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), extractor.calls.Load())

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Extract)
	assert.Equal(t, 1, stats.Entries)
}

func TestEmbeddingCache_ConcurrentMissesShareOneExtraction(t *testing.T) {
	ref, fp, data := galleryImage("bob")
	extractor := &countingExtractor{delay: 30 * time.Millisecond}
	loader := &mapLoader{files: map[string][]byte{ref: data}}
	c := newTestCache(t, extractor, loader, nil)

	var wg sync.WaitGroup
	results := make([]*domain.FaceEmbedding, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emb, err := c.Resolve(context.Background(), fp, ref)
			assert.NoError(t, err)
			results[i] = emb
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), extractor.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestEmbeddingCache_NegativeResultsAreMemoized(t *testing.T) {
	ref, fp, data := galleryImage("no face here")
	extractor := &countingExtractor{errs: map[string]error{string(data): domain.ErrNoFaceDetected}}
	loader := &mapLoader{files: map[string][]byte{ref: data}}
	c := newTestCache(t, extractor, loader, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Resolve(context.Background(), fp, ref)
		assert.ErrorIs(t, err, domain.ErrNoFaceDetected)
	}
	assert.Equal(t, int32(1), extractor.calls.Load())
}

func TestEmbeddingCache_TransientFailuresAreNotCached(t *testing.T) {
	ref, fp, data := galleryImage("flaky")
	extractor := &countingExtractor{errs: map[string]error{
		string(data): domain.ErrResourceExhausted.WithError(errors.New("oom")),
	}}
	loader := &mapLoader{files: map[string][]byte{ref: data}}
	c := newTestCache(t, extractor, loader, nil)

	_, err := c.Resolve(context.Background(), fp, ref)
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)

	delete(extractor.errs, string(data))
	emb, err := c.Resolve(context.Background(), fp, ref)
	require.NoError(t, err)
	assert.NotNil(t, emb)
	assert.Equal(t, int32(2), extractor.calls.Load())
}

func TestEmbeddingCache_FingerprintMismatch(t *testing.T) {
	ref, fp, _ := galleryImage("original bytes")
	extractor := &countingExtractor{}
	loader := &mapLoader{files: map[string][]byte{ref: []byte("replaced out of band")}}
	c := newTestCache(t, extractor, loader, nil)

	_, err := c.Resolve(context.Background(), fp, ref)

	assert.ErrorIs(t, err, domain.ErrFingerprintMismatch)
	assert.Equal(t, int32(0), extractor.calls.Load())
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestEmbeddingCache_MissingFingerprint(t *testing.T) {
	c := newTestCache(t, &countingExtractor{}, &mapLoader{files: map[string][]byte{}}, nil)

	_, err := c.Resolve(context.Background(), "", "student_faces/x.jpg")
	assert.ErrorIs(t, err, domain.ErrFingerprintMismatch)
}

func TestEmbeddingCache_MissingImage(t *testing.T) {
	c := newTestCache(t, &countingExtractor{}, &mapLoader{files: map[string][]byte{}}, nil)

	_, err := c.Resolve(context.Background(), "abc", "student_faces/abc.jpg")
	assert.ErrorIs(t, err, storage.ErrImageNotFound)
}

func TestEmbeddingCache_PersistentTier(t *testing.T) {
	ref, fp, data := galleryImage("carol")
	store := newMemStore()
	loader := &mapLoader{files: map[string][]byte{ref: data}}

	warm := newTestCache(t, &countingExtractor{}, loader, store)
	_, err := warm.Resolve(context.Background(), fp, ref)
	require.NoError(t, err)

	// a fresh process finds the embedding in the persistent tier
	extractor := &countingExtractor{}
	cold := newTestCache(t, extractor, loader, store)
	emb, err := cold.Resolve(context.Background(), fp, ref)

	require.NoError(t, err)
	assert.NotNil(t, emb)
	assert.Equal(t, int32(0), extractor.calls.Load())
}

func TestEmbeddingCache_InvalidateAndPut(t *testing.T) {
	ref, fp, data := galleryImage("dave")
	extractor := &countingExtractor{}
	store := newMemStore()
	loader := &mapLoader{files: map[string][]byte{ref: data}}
	c := newTestCache(t, extractor, loader, store)

	_, err := c.Resolve(context.Background(), fp, ref)
	require.NoError(t, err)

	c.Invalidate(context.Background(), fp)
	assert.Equal(t, 0, c.Stats().Entries)
	assert.Equal(t, 1, store.deletes)

	_, err = c.Resolve(context.Background(), fp, ref)
	require.NoError(t, err)
	assert.Equal(t, int32(2), extractor.calls.Load())

	primed := &domain.FaceEmbedding{Vector: []float64{0, 1}, DetScore: 0.8, FaceCount: 1}
	_, newFP, _ := galleryImage("dave v2")
	c.Put(context.Background(), newFP, primed)

	got, err := c.Resolve(context.Background(), newFP, "student_faces/"+newFP+".jpg")
	require.NoError(t, err)
	assert.Same(t, primed, got)
	assert.Equal(t, int32(2), extractor.calls.Load())
}
