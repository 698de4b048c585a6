package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Engine
	EngineType     string        `envconfig:"ENGINE_TYPE" default:"deepface"`
	EngineURL      string        `envconfig:"ENGINE_URL" default:"http://localhost:5005"`
	EngineModel    string        `envconfig:"ENGINE_MODEL" default:"buffalo_l"`
	EngineDetector string        `envconfig:"ENGINE_DETECTOR" default:"retinaface"`
	EngineTimeout  time.Duration `envconfig:"ENGINE_TIMEOUT" default:"30s"`
	EngineRetries  int           `envconfig:"ENGINE_RETRIES" default:"3"`
	EngineBackoff  time.Duration `envconfig:"ENGINE_RETRY_BACKOFF" default:"1s"`

	// Recognition
	Threshold          float64       `envconfig:"FACE_RECOGNITION_THRESHOLD" default:"0.35"`
	WorkingWidth       int           `envconfig:"WORKING_WIDTH" default:"640"`
	WorkingHeight      int           `envconfig:"WORKING_HEIGHT" default:"480"`
	RecognitionTimeout time.Duration `envconfig:"RECOGNITION_TIMEOUT" default:"10s"`
	ScanWorkers        int           `envconfig:"SCAN_WORKERS" default:"4"`
	DecodeBudgetMB     int64         `envconfig:"DECODE_MEMORY_BUDGET_MB" default:"256"`
	MaxImageBytes      int           `envconfig:"MAX_IMAGE_BYTES" default:"10485760"`

	// Cache
	CacheCapacity int  `envconfig:"CACHE_CAPACITY" default:"4096"`
	CachePersist  bool `envconfig:"CACHE_PERSIST" default:"true"`

	// Storage
	MediaRoot string `envconfig:"MEDIA_ROOT" default:"./media"`

	// Security
	JWTSecret     string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer     string        `envconfig:"JWT_ISSUER" default:"studentid-api"`
	JWTAccessTTL  time.Duration `envconfig:"JWT_ACCESS_TTL" default:"15m"`
	JWTRefreshTTL time.Duration `envconfig:"JWT_REFRESH_TTL" default:"168h"`

	// Rate limiting on the public recognize endpoint
	RecognizeRateLimit  int           `envconfig:"RECOGNIZE_RATE_LIMIT" default:"30"`
	RecognizeRateWindow time.Duration `envconfig:"RECOGNIZE_RATE_WINDOW" default:"1m"`

	// Failed logins per account before the window locks; 0 disables
	LoginMaxFailures   int           `envconfig:"LOGIN_MAX_FAILURES" default:"5"`
	LoginFailureWindow time.Duration `envconfig:"LOGIN_FAILURE_WINDOW" default:"15m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the recognition core cannot run with.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("load config: FACE_RECOGNITION_THRESHOLD must be in [0,1], got %v", c.Threshold)
	}
	if c.WorkingWidth <= 0 || c.WorkingHeight <= 0 {
		return fmt.Errorf("load config: working resolution must be positive, got %dx%d", c.WorkingWidth, c.WorkingHeight)
	}
	if c.ScanWorkers <= 0 {
		return fmt.Errorf("load config: SCAN_WORKERS must be positive, got %d", c.ScanWorkers)
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("load config: CACHE_CAPACITY must be positive, got %d", c.CacheCapacity)
	}
	if c.DecodeBudgetMB <= 0 {
		return fmt.Errorf("load config: DECODE_MEMORY_BUDGET_MB must be positive, got %d", c.DecodeBudgetMB)
	}
	return nil
}

// DecodeBudgetBytes returns the decode memory budget in bytes.
func (c *Config) DecodeBudgetBytes() int64 {
	return c.DecodeBudgetMB << 20
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
