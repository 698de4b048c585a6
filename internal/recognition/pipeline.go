package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider"
)

// decoded images are accounted as NRGBA
const bytesPerPixel = 4

var errImageTooLarge = errors.New("image exceeds decode memory budget")

type PipelineConfig struct {
	MaxWidth     int
	MaxHeight    int
	DecodeBudget int64
	DecodeWait   time.Duration // max wait for decode budget
	JPEGQuality  int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxWidth:     640,
		MaxHeight:    480,
		DecodeBudget: 256 << 20,
		DecodeWait:   2 * time.Second,
		JPEGQuality:  90,
	}
}

// Pipeline turns raw image bytes into the embedding of the best-detected face.
// It is stateless apart from the shared decode budget and is safe for concurrent use.
type Pipeline struct {
	engine provider.Engine
	cfg    PipelineConfig
	budget *semaphore.Weighted
	logger *slog.Logger
}

func NewPipeline(engine provider.Engine, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	defaults := DefaultPipelineConfig()
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = defaults.JPEGQuality
	}
	if cfg.DecodeWait <= 0 {
		cfg.DecodeWait = defaults.DecodeWait
	}
	return &Pipeline{
		engine: engine,
		cfg:    cfg,
		budget: semaphore.NewWeighted(cfg.DecodeBudget),
		logger: logger,
	}
}

// Model returns the engine model variant embeddings are produced with.
func (p *Pipeline) Model() string {
	return p.engine.Model()
}

// Extract validates, decodes and down-scales the image, embeds it and returns
// the face with the highest detector score. Ties keep the first face in scan order.
func (p *Pipeline) Extract(ctx context.Context, data []byte) (*domain.FaceEmbedding, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage.WithError(errors.New("empty image"))
	}

	working, err := p.prepare(ctx, data)
	if err != nil {
		return nil, err
	}

	faces, err := p.engine.Represent(ctx, working)
	if err != nil {
		return nil, classifyEngineError(ctx, err)
	}

	if len(faces) == 0 {
		return nil, domain.ErrNoFaceDetected
	}

	best := selectFace(faces)
	if len(best.Embedding) == 0 {
		return nil, domain.ErrEngineFailure.WithError(errors.New("engine returned face without embedding"))
	}

	vector := make([]float64, len(best.Embedding))
	copy(vector, best.Embedding)

	return &domain.FaceEmbedding{
		Vector:    vector,
		DetScore:  best.Confidence,
		FaceCount: len(faces),
	}, nil
}

// prepare decodes within the memory budget and re-encodes the working-resolution
// image as JPEG in memory. The decoded bitmap does not outlive this call.
func (p *Pipeline) prepare(ctx context.Context, data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height))
	}

	need := int64(cfg.Width) * int64(cfg.Height) * bytesPerPixel
	if need > p.cfg.DecodeBudget {
		p.logger.Warn("image rejected by decode budget",
			"width", cfg.Width, "height", cfg.Height, "format", format, "need_bytes", need)
		return nil, domain.ErrResourceExhausted.WithError(errImageTooLarge)
	}

	if err := p.reserve(ctx, need); err != nil {
		return nil, err
	}
	defer p.budget.Release(need)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	if err := ctx.Err(); err != nil {
		return nil, domain.ErrTimeout.WithError(err)
	}

	b := img.Bounds()
	if b.Dx() > p.cfg.MaxWidth || b.Dy() > p.cfg.MaxHeight {
		img = imaging.Fit(img, p.cfg.MaxWidth, p.cfg.MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.cfg.JPEGQuality)); err != nil {
		return nil, domain.ErrInternal.WithError(fmt.Errorf("encode working image: %w", err))
	}

	return buf.Bytes(), nil
}

// reserve waits up to DecodeWait for decode memory. Running out of wait is
// resource exhaustion; running out of the caller's deadline is a timeout.
func (p *Pipeline) reserve(ctx context.Context, need int64) error {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.DecodeWait)
	defer cancel()

	if err := p.budget.Acquire(waitCtx, need); err != nil {
		if ctx.Err() != nil {
			return domain.ErrTimeout.WithError(ctx.Err())
		}
		p.logger.Warn("decode memory budget exhausted", "need_bytes", need)
		return domain.ErrResourceExhausted.WithError(err)
	}
	return nil
}

// selectFace returns the face with the highest detector confidence,
// keeping the earliest one on exact ties.
func selectFace(faces []provider.DetectedFace) provider.DetectedFace {
	best := faces[0]
	for _, f := range faces[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best
}

func classifyEngineError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrTimeout.WithError(err)
	}

	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrEngineFailure.WithError(err)
}
