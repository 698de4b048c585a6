package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger logs one line per request; probes of /health and /ready only at debug
func Logger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()

		logLevel := slog.LevelInfo
		switch {
		case status >= 500:
			logLevel = slog.LevelError
		case status >= 400:
			logLevel = slog.LevelWarn
		case c.Path() == "/health" || c.Path() == "/ready":
			logLevel = slog.LevelDebug
		}

		attrs := []slog.Attr{
			slog.String("request_id", RequestID(c)),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if claims, cerr := GetClaims(c); cerr == nil {
			attrs = append(attrs, slog.String("user_id", claims.UserID.String()))
		}

		logger.LogAttrs(c.Context(), logLevel, "http request", attrs...)

		return err
	}
}
