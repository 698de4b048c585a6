package deepface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Represent(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse interface{}
		serverStatus   int
		wantErr        bool
		wantErrContain string
		wantStatus     int
		validateResp   func(*testing.T, *RepresentResponse)
	}{
		{
			name: "successful response with single face",
			serverResponse: RepresentResponse{
				Results: []RepresentResult{
					{
						Embedding:      make([]float64, 512),
						FacialArea:     FacialArea{X: 10, Y: 20, W: 100, H: 100},
						FaceConfidence: 0.98,
					},
				},
			},
			serverStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp *RepresentResponse) {
				require.NotNil(t, resp)
				assert.Len(t, resp.Results, 1)
				assert.Len(t, resp.Results[0].Embedding, 512)
				assert.Equal(t, 0.98, resp.Results[0].FaceConfidence)
				assert.Equal(t, 100, resp.Results[0].FacialArea.W)
			},
		},
		{
			name: "successful response with multiple faces",
			serverResponse: RepresentResponse{
				Results: []RepresentResult{
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 10, Y: 20, W: 100, H: 100}},
					{Embedding: make([]float64, 512), FacialArea: FacialArea{X: 150, Y: 30, W: 90, H: 90}},
				},
			},
			serverStatus: http.StatusOK,
			validateResp: func(t *testing.T, resp *RepresentResponse) {
				require.NotNil(t, resp)
				assert.Len(t, resp.Results, 2)
			},
		},
		{
			name:           "bad request 400 is returned as status error",
			serverResponse: ErrorResponse{Error: "invalid image format"},
			serverStatus:   http.StatusBadRequest,
			wantErr:        true,
			wantErrContain: "invalid image format",
			wantStatus:     http.StatusBadRequest,
		},
		{
			name:           "insufficient storage 507 is not retried",
			serverResponse: ErrorResponse{Error: "CUDA out of memory"},
			serverStatus:   http.StatusInsufficientStorage,
			wantErr:        true,
			wantErrContain: "out of memory",
			wantStatus:     http.StatusInsufficientStorage,
		},
		{
			name:           "server error 500 keeps the sidecar reply",
			serverResponse: ErrorResponse{Error: "internal server error"},
			serverStatus:   http.StatusInternalServerError,
			wantErr:        true,
			wantErrContain: "internal server error",
			wantStatus:     http.StatusInternalServerError,
		},
		{
			name:           "invalid json response",
			serverResponse: "not a valid json",
			serverStatus:   http.StatusOK,
			wantErr:        true,
			wantErrContain: "invalid response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/represent", r.URL.Path)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req RepresentRequest
				err := json.NewDecoder(r.Body).Decode(&req)
				require.NoError(t, err)

				assert.NotEmpty(t, req.Img)
				assert.Equal(t, "buffalo_l", req.Model)
				assert.Equal(t, "retinaface", req.Detector)
				assert.True(t, req.EnforceDetection)

				w.WriteHeader(tt.serverStatus)
				if str, ok := tt.serverResponse.(string); ok {
					_, _ = w.Write([]byte(str))
				} else {
					_ = json.NewEncoder(w).Encode(tt.serverResponse)
				}
			}))
			defer server.Close()

			config := DefaultConfig()
			config.BaseURL = server.URL
			config.RetryCount = 0

			client := NewClient(config)
			resp, err := client.Represent(context.Background(), "dGVzdA==")

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantErrContain != "" {
					assert.Contains(t, err.Error(), tt.wantErrContain)
				}
				if tt.wantStatus != 0 {
					var statusErr *StatusError
					require.ErrorAs(t, err, &statusErr)
					assert.Equal(t, tt.wantStatus, statusErr.StatusCode)
				}
				return
			}

			require.NoError(t, err)
			if tt.validateResp != nil {
				tt.validateResp(t, resp)
			}
		})
	}
}

func TestClient_RetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{}})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.Timeout = 5 * time.Second
	config.RetryCount = 3
	config.BaseDelay = 10 * time.Millisecond

	client := NewClient(config)
	resp, err := client.Represent(context.Background(), "dGVzdA==")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_NoRetryOnClientOrExhaustion(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusServiceUnavailable} {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "nope"})
		}))

		config := DefaultConfig()
		config.BaseURL = server.URL
		config.RetryCount = 3

		_, err := NewClient(config).Represent(context.Background(), "dGVzdA==")
		server.Close()

		require.Error(t, err)
		assert.Equal(t, int32(1), attempts.Load(), "status %d must not be retried", status)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(RepresentResponse{Results: []RepresentResult{}})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(config).Represent(ctx, "dGVzdA==")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Welcome to DeepFace API!"))
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 0

	require.NoError(t, NewClient(config).Ping(context.Background()))
}

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, time.Second, backoffFor(time.Second, 0))
	assert.Equal(t, time.Second, backoffFor(time.Second, 1))
	assert.Equal(t, 2*time.Second, backoffFor(time.Second, 2))
	assert.Equal(t, 4*time.Second, backoffFor(time.Second, 3))
	assert.Equal(t, maxBackoff, backoffFor(time.Second, 20))
	assert.Equal(t, 40*time.Millisecond, backoffFor(10*time.Millisecond, 3))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad gateway", &StatusError{StatusCode: http.StatusBadGateway}, true},
		{"transport error", errors.New("connection refused"), true},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, false},
		{"out of memory", &StatusError{StatusCode: http.StatusInternalServerError, Body: "CUDA out of memory"}, false},
		{"service unavailable", &StatusError{StatusCode: http.StatusServiceUnavailable}, false},
		{"undecodable reply", fmt.Errorf("%w: eof", ErrInvalidResponse), false},
		{"oom word", &StatusError{StatusCode: http.StatusInternalServerError, Body: "worker killed: OOM"}, false},
		{"room is not oom", &StatusError{StatusCode: http.StatusInternalServerError, Body: "no room left in batch"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "http://localhost:5005", config.BaseURL)
	assert.Equal(t, 30*time.Second, config.Timeout)
	assert.Equal(t, "buffalo_l", config.Model)
	assert.Equal(t, "retinaface", config.Detector)
	assert.Equal(t, 3, config.RetryCount)
	assert.Equal(t, time.Second, config.BaseDelay)
}

func TestStatusError_ResourceExhausted(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"CUDA out of memory", true},
		{"Resource exhausted: OOM when allocating tensor", true},
		{"oom", true},
		{"zoom factor too large", false},
		{"no room for another face", false},
		{"bloom filter rejected", false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			err := &StatusError{StatusCode: http.StatusBadRequest, Body: tt.body}
			assert.Equal(t, tt.want, err.resourceExhausted())
		})
	}
}

func TestClient_ExhaustedServerErrorIsNotUnavailable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "model error on this image"})
	}))
	defer server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 2
	config.BaseDelay = time.Millisecond

	_, err := NewClient(config).Represent(context.Background(), "dGVzdA==")
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.NotErrorIs(t, err, ErrDeepFaceUnavailable)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestClient_UnreachableIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	config := DefaultConfig()
	config.BaseURL = server.URL
	config.RetryCount = 1
	config.BaseDelay = time.Millisecond

	_, err := NewClient(config).Represent(context.Background(), "dGVzdA==")
	assert.ErrorIs(t, err, ErrDeepFaceUnavailable)
}
