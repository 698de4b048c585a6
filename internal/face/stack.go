package face

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/studentid/internal/cache"
	"github.com/saturnino-fabrica-de-software/studentid/internal/config"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider"
	"github.com/saturnino-fabrica-de-software/studentid/internal/recognition"
	"github.com/saturnino-fabrica-de-software/studentid/internal/storage"
)

// Stack is the recognition core shared by the API server and facectl
type Stack struct {
	Engine   *provider.Lazy
	Pipeline *recognition.Pipeline
	Images   *storage.LocalStore
	Cache    *cache.EmbeddingCache
	Matcher  *recognition.Matcher
}

// NewStack wires engine, pipeline, embedding cache and matcher from configuration.
// db backs the persistent cache tier; nil keeps embeddings in memory only.
func NewStack(cfg *config.Config, db cache.DB, logger *slog.Logger) (*Stack, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	images, err := storage.NewLocalStore(cfg.MediaRoot)
	if err != nil {
		return nil, err
	}

	pipeline := recognition.NewPipeline(engine, recognition.PipelineConfig{
		MaxWidth:     cfg.WorkingWidth,
		MaxHeight:    cfg.WorkingHeight,
		DecodeBudget: cfg.DecodeBudgetBytes(),
		DecodeWait:   2 * time.Second,
	}, logger.With("component", "pipeline"))

	var store cache.Store
	if cfg.CachePersist && db != nil {
		store = cache.NewPGStore(db)
	}

	embeddings, err := cache.NewEmbeddingCache(cfg.CacheCapacity, pipeline, images, store, logger.With("component", "embedding_cache"))
	if err != nil {
		return nil, fmt.Errorf("build recognition stack: %w", err)
	}

	matcher := recognition.NewMatcher(embeddings, recognition.MatcherConfig{
		Threshold: cfg.Threshold,
		Workers:   cfg.ScanWorkers,
	}, logger.With("component", "matcher"))

	return &Stack{
		Engine:   engine,
		Pipeline: pipeline,
		Images:   images,
		Cache:    embeddings,
		Matcher:  matcher,
	}, nil
}

// Close releases the engine
func (s *Stack) Close() error {
	return s.Engine.Close()
}
