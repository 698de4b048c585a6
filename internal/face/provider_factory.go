package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/studentid/internal/config"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/studentid/internal/provider/mock"
)

// EngineType defines supported embedding engine types
type EngineType string

const (
	// EngineTypeDeepFace talks to the DeepFace/InsightFace sidecar over HTTP
	EngineTypeDeepFace EngineType = "deepface"
	// EngineTypeMock is the deterministic in-process engine for dev/test
	EngineTypeMock EngineType = "mock"
)

// NewEngine returns the process-wide engine for the configured type. The
// concrete engine is built lazily on first use or on Warmup.
//
// Environment variables:
//   - ENGINE_TYPE: "deepface" or "mock" (default: "deepface")
//   - ENGINE_URL: sidecar URL (default: "http://localhost:5005")
//   - ENGINE_MODEL: model variant (default: "buffalo_l")
//   - ENGINE_DETECTOR: detector backend (default: "retinaface")
//   - ENGINE_RETRIES, ENGINE_RETRY_BACKOFF: sidecar retry policy (default: 3, 1s)
func NewEngine(cfg *config.Config) (*provider.Lazy, error) {
	switch EngineType(cfg.EngineType) {
	case EngineTypeDeepFace, "":
		dfConfig := deepFaceConfig(cfg)
		return provider.NewLazy(dfConfig.Model, func(ctx context.Context) (provider.Engine, error) {
			return deepface.NewProvider(dfConfig), nil
		}), nil

	case EngineTypeMock:
		return provider.NewLazy(mock.New().Model(), func(ctx context.Context) (provider.Engine, error) {
			return mock.New(), nil
		}), nil

	default:
		return nil, fmt.Errorf("unknown engine type: %s (supported: %s, %s)",
			cfg.EngineType, EngineTypeDeepFace, EngineTypeMock)
	}
}

func deepFaceConfig(cfg *config.Config) deepface.Config {
	dfConfig := deepface.DefaultConfig()
	if cfg.EngineURL != "" {
		dfConfig.BaseURL = cfg.EngineURL
	}
	if cfg.EngineModel != "" {
		dfConfig.Model = cfg.EngineModel
	}
	if cfg.EngineDetector != "" {
		dfConfig.Detector = cfg.EngineDetector
	}
	if cfg.EngineTimeout > 0 {
		dfConfig.Timeout = cfg.EngineTimeout
	}
	if cfg.EngineRetries > 0 {
		dfConfig.RetryCount = cfg.EngineRetries
	}
	if cfg.EngineBackoff > 0 {
		dfConfig.BaseDelay = cfg.EngineBackoff
	}
	return dfConfig
}
