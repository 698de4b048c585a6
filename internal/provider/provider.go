package provider

import "context"

// Engine define o motor de embeddings faciais (modelo pré-treinado, caixa preta)
type Engine interface {
	// Represent detecta faces na imagem e devolve um embedding por face,
	// na ordem em que o detector as encontrou. Zero faces não é erro.
	Represent(ctx context.Context, image []byte) ([]DetectedFace, error)

	// Warmup carrega o modelo / verifica o serviço antes do primeiro uso
	Warmup(ctx context.Context) error

	// Close libera os recursos do motor
	Close() error

	// Model identifica a variante do modelo; embeddings de variantes diferentes não se comparam
	Model() string
}

// DetectedFace represents a detected face and its embedding
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence"`
	Embedding   []float64   `json:"-"`
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
