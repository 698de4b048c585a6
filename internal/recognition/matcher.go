package recognition

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

const DefaultThreshold = 0.35

// Resolver yields the embedding of a stored gallery image.
type Resolver interface {
	Resolve(ctx context.Context, fingerprint, imageRef string) (*domain.FaceEmbedding, error)
}

type MatcherConfig struct {
	Threshold float64
	Workers   int
}

// Matcher scans the gallery for the entry most similar to a probe embedding.
type Matcher struct {
	resolver  Resolver
	threshold float64
	workers   int
	logger    *slog.Logger
}

func NewMatcher(resolver Resolver, cfg MatcherConfig, logger *slog.Logger) *Matcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Matcher{
		resolver:  resolver,
		threshold: cfg.Threshold,
		workers:   cfg.Workers,
		logger:    logger,
	}
}

func (m *Matcher) Threshold() float64 {
	return m.threshold
}

type candidateScore struct {
	confidence float64
	scored     bool
	skipped    bool
}

// Match compares the probe against every gallery entry and applies the threshold.
//
// Per-entry failures are skipped. Resource exhaustion and engine unavailability
// abort the scan and are returned as errors. If ctx expires mid-scan the
// decision is NO_MATCH with the best confidence seen and TimedOut set.
// Elapsed is left for the caller, which owns the start of the measurement.
func (m *Matcher) Match(ctx context.Context, probe *domain.FaceEmbedding, gallery []domain.GalleryEntry) (*domain.MatchDecision, error) {
	decision := &domain.MatchDecision{Candidates: len(gallery)}

	if len(gallery) == 0 {
		decision.Fail(domain.OutcomeNoGallery, domain.ErrNoGalleryCandidates)
		return decision, nil
	}

	scores := make([]candidateScore, len(gallery))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i := range gallery {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return m.score(gctx, probe, gallery[i], &scores[i])
		})
	}
	scanErr := g.Wait()

	if ctx.Err() != nil {
		decision.TimedOut = true
	} else if scanErr != nil {
		return nil, scanErr
	}

	bestIdx := -1
	bestConf := 0.0
	for i, s := range scores {
		if s.skipped {
			decision.Skipped++
		}
		if !s.scored {
			continue
		}
		decision.Scanned++
		if s.confidence > bestConf {
			bestConf = s.confidence
			bestIdx = i
		}
	}

	decision.Confidence = bestConf
	if bestIdx >= 0 && !decision.TimedOut && bestConf >= m.threshold {
		id := gallery[bestIdx].StudentID
		decision.Outcome = domain.OutcomeAccepted
		decision.StudentID = &id
		return decision, nil
	}

	code := domain.ErrNoMatch.Code
	decision.Outcome = domain.OutcomeNoMatch
	decision.ErrorCode = &code
	decision.Reason = domain.ErrNoMatch.Message
	if decision.TimedOut {
		decision.Reason = domain.ErrTimeout.Message
	}

	m.logger.Debug("gallery scan finished without match",
		"candidates", decision.Candidates,
		"scanned", decision.Scanned,
		"skipped", decision.Skipped,
		"best_confidence", bestConf,
		"timed_out", decision.TimedOut,
	)

	return decision, nil
}

func (m *Matcher) score(ctx context.Context, probe *domain.FaceEmbedding, entry domain.GalleryEntry, out *candidateScore) error {
	if ctx.Err() != nil {
		return nil
	}

	emb, err := m.resolver.Resolve(ctx, entry.Fingerprint, entry.ImageRef)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if isFatal(err) {
			m.logger.Error("gallery scan aborted",
				"student_id", entry.StudentID,
				"error", err,
			)
			return err
		}
		out.skipped = true
		m.logger.Debug("gallery entry skipped",
			"student_id", entry.StudentID,
			"matric_number", entry.MatricNumber,
			"error", err,
		)
		return nil
	}

	conf, err := Score(probe.Vector, emb.Vector)
	if err != nil {
		out.skipped = true
		m.logger.Warn("gallery entry has unusable embedding",
			"student_id", entry.StudentID,
			"error", err,
		)
		return nil
	}

	out.confidence = conf
	out.scored = true
	return nil
}

// isFatal reports errors that are not about a particular gallery image.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrResourceExhausted) || errors.Is(err, domain.ErrEngineUnavailable)
}
