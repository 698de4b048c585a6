package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/service"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

// AuthService interface for the service
type AuthService interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
}

type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

func NewAuthHandler(service AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// LoginResponse response for login endpoint
type LoginResponse struct {
	Success bool `json:"success"`
	*service.LoginResult
}

// TokenResponse response for refresh endpoint
type TokenResponse struct {
	Success bool `json:"success"`
	*token.Pair
}

// Login POST /v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return domain.ErrValidationFailed.WithError(errors.New("email and password are required"))
	}

	result, err := h.service.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(LoginResponse{Success: true, LoginResult: result})
}

// Refresh POST /v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if strings.TrimSpace(req.Refresh) == "" {
		return domain.ErrValidationFailed.WithError(errors.New("refresh is required"))
	}

	pair, err := h.service.Refresh(c.UserContext(), req.Refresh)
	if err != nil {
		return err
	}

	return c.JSON(TokenResponse{Success: true, Pair: pair})
}
