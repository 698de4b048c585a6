package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// DB interface for database operations (compatible with pgxpool.Pool and pgxmock)
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PGStore persists gallery embeddings in a pgvector column so a restart does
// not have to re-embed the whole gallery.
type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

// Get retrieves the embedding for a model variant and image fingerprint
func (s *PGStore) Get(ctx context.Context, model, fingerprint string) (*domain.FaceEmbedding, error) {
	query := `
		SELECT embedding, det_score, face_count
		FROM embedding_cache
		WHERE model = $1 AND fingerprint = $2
	`

	var vec *pgvector.Vector
	emb := &domain.FaceEmbedding{}

	err := s.db.QueryRow(ctx, query, model, fingerprint).Scan(&vec, &emb.DetScore, &emb.FaceCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get cached embedding: %w", err)
	}

	if vec == nil || len(vec.Slice()) == 0 {
		return nil, ErrCacheMiss
	}

	floats := vec.Slice()
	emb.Vector = make([]float64, len(floats))
	for i, v := range floats {
		emb.Vector[i] = float64(v)
	}

	return emb, nil
}

// Set stores an embedding, replacing any previous one for the same key
func (s *PGStore) Set(ctx context.Context, model, fingerprint string, emb *domain.FaceEmbedding) error {
	query := `
		INSERT INTO embedding_cache (model, fingerprint, embedding, det_score, face_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model, fingerprint) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    det_score = EXCLUDED.det_score,
		    face_count = EXCLUDED.face_count,
		    created_at = NOW()
	`

	floats := make([]float32, len(emb.Vector))
	for i, v := range emb.Vector {
		floats[i] = float32(v)
	}

	_, err := s.db.Exec(ctx, query, model, fingerprint, pgvector.NewVector(floats), emb.DetScore, emb.FaceCount)
	if err != nil {
		return fmt.Errorf("set cached embedding: %w", err)
	}
	return nil
}

// Delete removes every model's embedding for a fingerprint
func (s *PGStore) Delete(ctx context.Context, fingerprint string) error {
	query := `DELETE FROM embedding_cache WHERE fingerprint = $1`
	if _, err := s.db.Exec(ctx, query, fingerprint); err != nil {
		return fmt.Errorf("delete cached embedding: %w", err)
	}
	return nil
}

// Count returns how many embeddings are stored for a model variant
func (s *PGStore) Count(ctx context.Context, model string) (int, error) {
	query := `SELECT COUNT(*) FROM embedding_cache WHERE model = $1`

	var count int
	if err := s.db.QueryRow(ctx, query, model).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cached embeddings: %w", err)
	}
	return count, nil
}
