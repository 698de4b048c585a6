package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/studentid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(testLogger()),
	})
}

// withClaims simulates the Auth middleware
func withClaims(claims *token.Claims) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claims != nil {
			c.Locals(middleware.LocalClaims, claims)
		}
		return c.Next()
	}
}

// createMultipartRequest builds a form with the given fields and an optional image part
func createMultipartRequest(fields map[string]string, image []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}

	if image != nil {
		part, _ := writer.CreateFormFile("image", "capture.jpg")
		_, _ = part.Write(image)
	}

	_ = writer.Close()
	return body, writer.FormDataContentType()
}

type errorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
