package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/storage"
)

// Extractor embeds raw image bytes; satisfied by recognition.Pipeline.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*domain.FaceEmbedding, error)
	Model() string
}

// ImageLoader reads stored gallery images; satisfied by storage.LocalStore.
type ImageLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Store is the optional persistent tier; satisfied by PGStore.
type Store interface {
	Get(ctx context.Context, model, fingerprint string) (*domain.FaceEmbedding, error)
	Set(ctx context.Context, model, fingerprint string, emb *domain.FaceEmbedding) error
	Delete(ctx context.Context, fingerprint string) error
}

type entry struct {
	emb *domain.FaceEmbedding
	err error
}

// Stats are cumulative counters since process start.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Extract int64 `json:"extract_calls"`
	Entries int   `json:"entries"`
}

// EmbeddingCache memoizes gallery embeddings by model variant and image
// fingerprint. Concurrent misses on one key share a single extraction.
type EmbeddingCache struct {
	mem       *lru.Cache[string, entry]
	group     singleflight.Group
	store     Store
	images    ImageLoader
	extractor Extractor
	model     string
	logger    *slog.Logger

	hits     atomic.Int64
	misses   atomic.Int64
	extracts atomic.Int64
}

// NewEmbeddingCache builds the cache. store may be nil to keep it memory-only.
func NewEmbeddingCache(capacity int, extractor Extractor, images ImageLoader, store Store, logger *slog.Logger) (*EmbeddingCache, error) {
	mem, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingCache{
		mem:       mem,
		store:     store,
		images:    images,
		extractor: extractor,
		model:     extractor.Model(),
		logger:    logger,
	}, nil
}

func (c *EmbeddingCache) key(fingerprint string) string {
	return c.model + ":" + fingerprint
}

// Resolve returns the embedding of the image behind imageRef, whose bytes must
// hash to fingerprint.
func (c *EmbeddingCache) Resolve(ctx context.Context, fingerprint, imageRef string) (*domain.FaceEmbedding, error) {
	if fingerprint == "" {
		return nil, domain.ErrFingerprintMismatch.WithError(errors.New("gallery entry has no fingerprint"))
	}

	key := c.key(fingerprint)
	if e, ok := c.mem.Get(key); ok {
		c.hits.Add(1)
		return e.emb, e.err
	}
	c.misses.Add(1)

	// A follower whose leader was cancelled retries once under its own context.
	for attempt := 0; ; attempt++ {
		v, err, _ := c.group.Do(key, func() (interface{}, error) {
			return c.load(ctx, key, fingerprint, imageRef)
		})
		if err != nil {
			if attempt == 0 && ctx.Err() == nil &&
				(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				continue
			}
			return nil, err
		}
		return v.(*domain.FaceEmbedding), nil
	}
}

func (c *EmbeddingCache) load(ctx context.Context, key, fingerprint, imageRef string) (*domain.FaceEmbedding, error) {
	if e, ok := c.mem.Get(key); ok {
		return e.emb, e.err
	}

	if c.store != nil {
		emb, err := c.store.Get(ctx, c.model, fingerprint)
		switch {
		case err == nil:
			c.mem.Add(key, entry{emb: emb})
			return emb, nil
		case !errors.Is(err, ErrCacheMiss):
			c.logger.Warn("persistent embedding cache unavailable", "fingerprint", fingerprint, "error", err)
		}
	}

	data, err := c.images.Load(ctx, imageRef)
	if err != nil {
		return nil, fmt.Errorf("load gallery image: %w", err)
	}

	if got := storage.Fingerprint(data); got != fingerprint {
		return nil, domain.ErrFingerprintMismatch.WithError(
			fmt.Errorf("%s: recorded %s, stored bytes hash to %s", imageRef, fingerprint, got))
	}

	c.extracts.Add(1)
	emb, err := c.extractor.Extract(ctx, data)
	if err != nil {
		if deterministic(err) {
			c.mem.Add(key, entry{err: err})
		}
		return nil, err
	}

	c.mem.Add(key, entry{emb: emb})
	c.persist(ctx, fingerprint, emb)
	return emb, nil
}

// Put primes the cache with an embedding computed elsewhere for the same bytes.
func (c *EmbeddingCache) Put(ctx context.Context, fingerprint string, emb *domain.FaceEmbedding) {
	c.mem.Add(c.key(fingerprint), entry{emb: emb})
	c.persist(ctx, fingerprint, emb)
}

// Invalidate drops any cached result for fingerprint from both tiers.
func (c *EmbeddingCache) Invalidate(ctx context.Context, fingerprint string) {
	key := c.key(fingerprint)
	c.mem.Remove(key)
	c.group.Forget(key)

	if c.store != nil {
		if err := c.store.Delete(ctx, fingerprint); err != nil {
			c.logger.Warn("failed to invalidate persisted embedding", "fingerprint", fingerprint, "error", err)
		}
	}
}

func (c *EmbeddingCache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Extract: c.extracts.Load(),
		Entries: c.mem.Len(),
	}
}

func (c *EmbeddingCache) persist(ctx context.Context, fingerprint string, emb *domain.FaceEmbedding) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, c.model, fingerprint, emb); err != nil {
		c.logger.Warn("failed to persist embedding", "fingerprint", fingerprint, "error", err)
	}
}

// deterministic reports failures that will recur for the same bytes and model.
func deterministic(err error) bool {
	return errors.Is(err, domain.ErrInvalidImage) || errors.Is(err, domain.ErrNoFaceDetected)
}
