package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const Version = "0.1.0"

// Pinger is a dependency that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineStatus reports whether the embedding engine is initialized
type EngineStatus interface {
	Ready() bool
}

type HealthHandler struct {
	db      Pinger
	media   Pinger
	engine  EngineStatus
	timeout time.Duration
}

// NewHealthHandler creates the handler; nil dependencies are not checked
func NewHealthHandler(db, media Pinger, engine EngineStatus) *HealthHandler {
	return &HealthHandler{
		db:      db,
		media:   media,
		engine:  engine,
		timeout: 2 * time.Second,
	}
}

type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// Ready reports 503 until the database, media root and engine are usable
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	checks := map[string]string{}
	ready := true

	ping := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	ping("database", h.db)
	ping("media", h.media)

	if h.engine != nil {
		if h.engine.Ready() {
			checks["engine"] = "ok"
		} else {
			checks["engine"] = "not initialized"
			ready = false
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status: "unavailable",
			Checks: checks,
		})
	}

	return c.JSON(HealthResponse{
		Status: "ready",
		Checks: checks,
	})
}
