package recognition

import (
	"errors"
	"math"
)

// ErrDegenerateEmbedding is returned for empty, zero-norm or mismatched vectors.
var ErrDegenerateEmbedding = errors.New("degenerate embedding")

// CosineSimilarity calculates the cosine similarity between two embedding vectors.
// Returns a value between -1.0 (opposite) and 1.0 (identical).
func CosineSimilarity(embedding1, embedding2 []float64) (float64, error) {
	if len(embedding1) != len(embedding2) || len(embedding1) == 0 {
		return 0, ErrDegenerateEmbedding
	}

	var dotProduct, norm1, norm2 float64
	for i := range embedding1 {
		dotProduct += embedding1[i] * embedding2[i]
		norm1 += embedding1[i] * embedding1[i]
		norm2 += embedding2[i] * embedding2[i]
	}

	if norm1 == 0 || norm2 == 0 {
		return 0, ErrDegenerateEmbedding
	}

	return dotProduct / (math.Sqrt(norm1) * math.Sqrt(norm2)), nil
}

// Confidence rescales cosine similarity from [-1, 1] to [0, 1].
// Rounding can push |cos| a hair past 1, so it is clamped first.
func Confidence(cosine float64) float64 {
	if cosine > 1 {
		cosine = 1
	} else if cosine < -1 {
		cosine = -1
	}
	return (cosine + 1) / 2
}

// Score returns the match confidence between a probe and a candidate embedding.
func Score(probe, candidate []float64) (float64, error) {
	cos, err := CosineSimilarity(probe, candidate)
	if err != nil {
		return 0, err
	}
	return Confidence(cos), nil
}
