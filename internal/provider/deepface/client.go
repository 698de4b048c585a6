package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Model      string
	Detector   string
	RetryCount int
	// BaseDelay is the first retry delay; later ones double up to maxBackoff
	BaseDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:5005",
		Timeout:    30 * time.Second,
		Model:      "buffalo_l",
		Detector:   "retinaface",
		RetryCount: 3,
		BaseDelay:  time.Second,
	}
}

// Client talks JSON to the DeepFace sidecar
type Client struct {
	httpClient *http.Client
	config     Config
}

func NewClient(config Config) *Client {
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// Represent asks the sidecar for one embedding per detected face
func (c *Client) Represent(ctx context.Context, imageBase64 string) (*RepresentResponse, error) {
	req := RepresentRequest{
		Img:              imageBase64,
		Model:            c.config.Model,
		Detector:         c.config.Detector,
		EnforceDetection: true,
		Align:            true,
	}

	var resp RepresentResponse
	if err := c.call(ctx, http.MethodPost, "/represent", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ping succeeds once the sidecar answers on its root path
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/", nil, nil)
}

const maxBackoff = 30 * time.Second

// backoffFor returns base, base, 2*base, 4*base... capped at maxBackoff
func backoffFor(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	if attempt > 6 {
		attempt = 6
	}
	d := base << (attempt - 1)
	return min(d, maxBackoff)
}

// retryable is false for replies another attempt cannot change
func retryable(err error) bool {
	if errors.Is(err, ErrInvalidResponse) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.clientError() && !statusErr.resourceExhausted()
	}
	return true
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var err error
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoffFor(c.config.BaseDelay, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = c.send(ctx, method, path, in, out)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case !retryable(err):
			return err
		}
	}

	// a reply the sidecar did send is about this request, not the service
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeepFaceUnavailable, err)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s reply: %w", path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		reason := string(raw)
		var errResp ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			reason = errResp.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: reason}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
