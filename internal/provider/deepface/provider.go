package deepface

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.Engine using the DeepFace sidecar
type Provider struct {
	client *Client
	model  string
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
		model:  config.Model,
	}
}

// Represent detects every face in the image and returns its embedding
func (p *Provider) Represent(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	imageBase64 := base64.StdEncoding.EncodeToString(image)

	resp, err := p.client.Represent(ctx, imageBase64)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.noFace() {
			return []provider.DetectedFace{}, nil
		}
		return nil, classifyError(err)
	}

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Embedding) == 0 {
			return nil, domain.ErrEngineFailure.WithError(ErrInvalidResponse)
		}

		faceArea := float64(result.FacialArea.W * result.FacialArea.H)
		confidence := result.FaceConfidence
		if confidence <= 0 {
			confidence = calculateConfidence(faceArea)
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(result.FacialArea.X),
				Y:      float64(result.FacialArea.Y),
				Width:  float64(result.FacialArea.W),
				Height: float64(result.FacialArea.H),
			},
			Confidence: confidence,
			Embedding:  result.Embedding,
		})
	}

	return faces, nil
}

// Warmup pings the sidecar so the first request does not pay model load time
func (p *Provider) Warmup(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("warmup deepface: %w", err)
	}
	return nil
}

// Close releases idle connections
func (p *Provider) Close() error {
	p.client.httpClient.CloseIdleConnections()
	return nil
}

func (p *Provider) Model() string {
	return p.model
}

// classifyError maps sidecar failures onto the recognition error taxonomy.
// Only an unreachable sidecar is ErrEngineUnavailable; a 5xx reply is a
// failure on that one image.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.resourceExhausted():
			return domain.ErrResourceExhausted.WithError(err)
		case statusErr.clientError():
			return domain.ErrInvalidImage.WithError(err)
		case statusErr.serverError():
			return domain.ErrEngineFailure.WithError(err)
		}
	}

	if errors.Is(err, ErrDeepFaceUnavailable) {
		return domain.ErrEngineUnavailable.WithError(err)
	}
	return domain.ErrEngineFailure.WithError(err)
}

// calculateConfidence estimates detector confidence from face area when the
// sidecar does not report face_confidence
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5
	}
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// Ensure Provider implements provider.Engine
var _ provider.Engine = (*Provider)(nil)
