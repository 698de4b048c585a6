package deepface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 0
	return NewProvider(config)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestProvider_Represent_MapsFacesInScanOrder(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, RepresentResponse{Results: []RepresentResult{
			{Embedding: []float64{0.1, 0.2}, FacialArea: FacialArea{X: 1, Y: 2, W: 100, H: 120}, FaceConfidence: 0.91},
			{Embedding: []float64{0.3, 0.4}, FacialArea: FacialArea{X: 200, Y: 10, W: 30, H: 30}},
		}})
	})

	faces, err := p.Represent(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	require.Len(t, faces, 2)

	assert.Equal(t, 0.91, faces[0].Confidence)
	assert.Equal(t, []float64{0.1, 0.2}, faces[0].Embedding)
	assert.Equal(t, 120.0, faces[0].BoundingBox.Height)

	// sidecar omitted face_confidence: falls back to the area estimate
	assert.Equal(t, 0.5, faces[1].Confidence)
}

func TestProvider_Represent_NoFaceIsEmptyResult(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Face could not be detected in numpy array. Please confirm that the picture is a face photo",
		})
	})

	faces, err := p.Represent(context.Background(), []byte("jpeg"))
	require.NoError(t, err)
	assert.Empty(t, faces)
}

func TestProvider_Represent_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		wantErr error
	}{
		{"bad image", http.StatusBadRequest, ErrorResponse{Error: "cannot identify image file"}, domain.ErrInvalidImage},
		{"sidecar oom", http.StatusInternalServerError, ErrorResponse{Error: "RuntimeError: CUDA out of memory"}, domain.ErrResourceExhausted},
		{"sidecar busy", http.StatusServiceUnavailable, ErrorResponse{Error: "busy"}, domain.ErrResourceExhausted},
		{"sidecar broken", http.StatusInternalServerError, ErrorResponse{Error: "boom"}, domain.ErrEngineFailure},
		{"bad request mentioning zoom", http.StatusBadRequest, ErrorResponse{Error: "zoom level out of range"}, domain.ErrInvalidImage},
		{"garbage body", http.StatusOK, "not json", domain.ErrEngineFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				if s, ok := tt.body.(string); ok {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(s))
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := p.Represent(context.Background(), []byte("jpeg"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProvider_Represent_ServerErrorAfterRetriesIsEngineFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal model error on this image"})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 2
	config.BaseDelay = time.Millisecond

	_, err := NewProvider(config).Represent(context.Background(), []byte("jpeg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
	assert.NotErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestProvider_Represent_UnreachableIsEngineUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 0

	_, err := NewProvider(config).Represent(context.Background(), []byte("jpeg"))
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestProvider_Represent_EmptyEmbeddingIsEngineFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, RepresentResponse{Results: []RepresentResult{{FaceConfidence: 0.9}}})
	})

	_, err := p.Represent(context.Background(), []byte("jpeg"))
	assert.ErrorIs(t, err, domain.ErrEngineFailure)
}

func TestClassifyError_PassesContextErrorsThrough(t *testing.T) {
	err := classifyError(context.DeadlineExceeded)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var appErr *domain.AppError
	assert.False(t, errors.As(err, &appErr))
}

func TestProvider_WarmupAndModel(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, p.Warmup(context.Background()))
	assert.Equal(t, "buffalo_l", p.Model())
	assert.NoError(t, p.Close())
}

func TestCalculateConfidence(t *testing.T) {
	assert.Equal(t, 0.5, calculateConfidence(100))
	assert.InDelta(t, 0.7, calculateConfidence(minFaceArea), 1e-9)
	assert.InDelta(t, 0.99, calculateConfidence(maxFaceArea*2), 1e-9)
}
