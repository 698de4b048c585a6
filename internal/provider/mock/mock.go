package mock

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider"
)

const (
	embeddingDimension = 512
	// blankStdDev abaixo disso a imagem é considerada vazia (sem face)
	blankStdDev = 2.0
	modelName   = "mock"
)

// Provider implementa provider.Engine para testes e desenvolvimento.
// Gera embeddings determinísticos a partir do hash da imagem, então a mesma
// foto sempre produz o mesmo vetor.
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// Represent decodifica a imagem e devolve uma face, ou nenhuma se a imagem for uniforme
func (p *Provider) Represent(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	if luminanceStdDev(img) < blankStdDev {
		return []provider.DetectedFace{}, nil
	}

	b := img.Bounds()
	return []provider.DetectedFace{
		{
			BoundingBox: provider.BoundingBox{
				X:      float64(b.Dx()) * 0.1,
				Y:      float64(b.Dy()) * 0.1,
				Width:  float64(b.Dx()) * 0.8,
				Height: float64(b.Dy()) * 0.8,
			},
			Confidence: 0.99,
			Embedding:  generateEmbedding(data),
		},
	}, nil
}

func (p *Provider) Warmup(ctx context.Context) error { return nil }

func (p *Provider) Close() error { return nil }

func (p *Provider) Model() string { return modelName }

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(data []byte) []float64 {
	hash := sha256.Sum256(data)
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		// mistura o índice para que as 16 repetições do hash não fiquem idênticas
		idx := (i*7 + i/hashLen) % hashLen
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		embedding[0] = 1
		return embedding
	}

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

// luminanceStdDev amostra a imagem numa grade e mede a variação de luminância
func luminanceStdDev(img image.Image) float64 {
	b := img.Bounds()
	stepX := max(1, b.Dx()/64)
	stepY := max(1, b.Dy()/64)

	var sum, sumSq, n float64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			l := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			sum += l
			sumSq += l * l
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / n
	return math.Sqrt(math.Max(0, sumSq/n-mean*mean))
}

var _ provider.Engine = (*Provider)(nil)
