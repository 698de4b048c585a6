package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/studentid/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/service"
)

const (
	defaultMaxImageSize = 10 * 1024 * 1024 // 10MB
)

// RecognitionService interface for the service
type RecognitionService interface {
	Recognize(ctx context.Context, probe domain.ProbeImage, clientIP string) (*service.RecognitionResult, error)
	RegisterFace(ctx context.Context, studentID uuid.UUID, data []byte) (*domain.Student, error)
	ListLogs(ctx context.Context, filter domain.RecognitionLogFilter) ([]domain.RecognitionLog, error)
	DashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

// RecognitionHandler handles recognition requests
type RecognitionHandler struct {
	service      RecognitionService
	maxImageSize int64
	logger       *slog.Logger
}

// NewRecognitionHandler creates a new RecognitionHandler; maxImageSize <= 0 uses 10MB
func NewRecognitionHandler(service RecognitionService, maxImageSize int64, logger *slog.Logger) *RecognitionHandler {
	if maxImageSize <= 0 {
		maxImageSize = defaultMaxImageSize
	}
	return &RecognitionHandler{
		service:      service,
		maxImageSize: maxImageSize,
		logger:       logger,
	}
}

// ErrorPayload is the error part of a failed response
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RecognizeResponse response for recognize endpoint
type RecognizeResponse struct {
	Success          bool            `json:"success"`
	Outcome          domain.Outcome  `json:"outcome"`
	Confidence       *float64        `json:"confidence,omitempty"`
	Student          *domain.Student `json:"student,omitempty"`
	Token            string          `json:"token,omitempty"`
	Refresh          string          `json:"refresh,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	LogID            string          `json:"log_id"`
	Error            *ErrorPayload   `json:"error,omitempty"`
}

// RegisterFaceResponse response for register-face endpoint
type RegisterFaceResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Student *domain.Student `json:"student"`
}

// LogsResponse response for logs endpoint
type LogsResponse struct {
	Success bool                    `json:"success"`
	Logs    []domain.RecognitionLog `json:"logs"`
	Count   int                     `json:"count"`
}

// Recognize POST /v1/recognition/recognize - identify the student in the image
func (h *RecognitionHandler) Recognize(c *fiber.Ctx) error {
	probe, err := h.readImage(c)
	if err != nil {
		return fmt.Errorf("recognize: %w", err)
	}

	result, err := h.service.Recognize(c.UserContext(), probe, c.IP())
	if err != nil {
		return err
	}

	decision := result.Decision
	resp := RecognizeResponse{
		Success:          decision.Accepted(),
		Outcome:          decision.Outcome,
		ProcessingTimeMs: decision.Elapsed.Milliseconds(),
		LogID:            result.Log.ID.String(),
	}

	if decision.Accepted() {
		resp.Confidence = &decision.Confidence
		resp.Student = result.Student
		if result.Tokens != nil {
			resp.Token = result.Tokens.AccessToken
			resp.Refresh = result.Tokens.RefreshToken
		}
		return c.JSON(resp)
	}

	if decision.Outcome == domain.OutcomeNoMatch {
		resp.Confidence = &decision.Confidence
	}
	if decision.Outcome == domain.OutcomeResourceExhausted {
		c.Set(fiber.HeaderRetryAfter, "5")
	}

	code := domain.ErrInternal.Code
	if decision.ErrorCode != nil {
		code = *decision.ErrorCode
	}
	resp.Error = &ErrorPayload{Code: code, Message: decision.Reason}

	return c.Status(statusFor(decision.Outcome, code)).JSON(resp)
}

// statusFor maps a failed outcome to its HTTP status
func statusFor(outcome domain.Outcome, code string) int {
	switch outcome {
	case domain.OutcomeNoFace:
		return fiber.StatusBadRequest
	case domain.OutcomeNoMatch, domain.OutcomeNoGallery:
		return fiber.StatusNotFound
	case domain.OutcomeResourceExhausted:
		return fiber.StatusServiceUnavailable
	}

	switch code {
	case domain.ErrInvalidImage.Code:
		return fiber.StatusUnprocessableEntity
	case domain.ErrTimeout.Code:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// RegisterFace POST /v1/recognition/register-face - enroll or replace a student's reference image
func (h *RecognitionHandler) RegisterFace(c *fiber.Ctx) error {
	raw := strings.TrimSpace(c.FormValue("student_id"))
	if raw == "" {
		return domain.ErrValidationFailed.WithError(errors.New("student_id is required"))
	}
	studentID, err := uuid.Parse(raw)
	if err != nil {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("student_id: %w", err))
	}

	if !middleware.CanManageStudent(c, studentID) {
		return domain.ErrForbidden
	}

	probe, err := h.readImage(c)
	if err != nil {
		return fmt.Errorf("register face: %w", err)
	}

	student, err := h.service.RegisterFace(c.UserContext(), studentID, probe.Data)
	if err != nil {
		return err
	}

	return c.JSON(RegisterFaceResponse{
		Success: true,
		Message: "Face registered successfully",
		Student: student,
	})
}

// Logs GET /v1/recognition/logs - list recognition attempts, newest first
func (h *RecognitionHandler) Logs(c *fiber.Ctx) error {
	filter, err := parseLogFilter(c)
	if err != nil {
		return err
	}

	logs, err := h.service.ListLogs(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []domain.RecognitionLog{}
	}

	return c.JSON(LogsResponse{
		Success: true,
		Logs:    logs,
		Count:   len(logs),
	})
}

// DashboardStats GET /v1/recognition/dashboard-stats
func (h *RecognitionHandler) DashboardStats(c *fiber.Ctx) error {
	stats, err := h.service.DashboardStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func parseLogFilter(c *fiber.Ctx) (domain.RecognitionLogFilter, error) {
	var filter domain.RecognitionLogFilter

	if v := c.Query("success"); v != "" {
		success, err := strconv.ParseBool(v)
		if err != nil {
			return filter, domain.ErrValidationFailed.WithError(fmt.Errorf("success: %w", err))
		}
		filter.Success = &success
	}

	if v := c.Query("outcome"); v != "" {
		outcome := domain.Outcome(strings.ToUpper(v))
		if !validOutcomes[outcome] {
			return filter, domain.ErrValidationFailed.WithError(fmt.Errorf("unknown outcome %q", v))
		}
		filter.Outcome = &outcome
	}

	if v := c.Query("student_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, domain.ErrValidationFailed.WithError(fmt.Errorf("student_id: %w", err))
		}
		filter.StudentID = &id
	}

	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, domain.ErrValidationFailed.WithError(fmt.Errorf("since: %w", err))
		}
		filter.Since = &since
	}

	filter.Limit = c.QueryInt("limit", 0)
	filter.Offset = c.QueryInt("offset", 0)
	if filter.Limit < 0 || filter.Offset < 0 {
		return filter, domain.ErrValidationFailed.WithError(errors.New("limit and offset must not be negative"))
	}

	return filter, nil
}

var validOutcomes = map[domain.Outcome]bool{
	domain.OutcomeAccepted:          true,
	domain.OutcomeNoFace:            true,
	domain.OutcomeNoMatch:           true,
	domain.OutcomeNoGallery:         true,
	domain.OutcomeResourceExhausted: true,
	domain.OutcomeError:             true,
}

// readImage extracts the "image" part; decoding is left to the pipeline
func (h *RecognitionHandler) readImage(c *fiber.Ctx) (domain.ProbeImage, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return domain.ProbeImage{}, domain.ErrValidationFailed.WithError(fmt.Errorf("image is required: %w", err))
	}

	if file.Size > h.maxImageSize {
		return domain.ProbeImage{}, domain.ErrInvalidImage.WithError(
			fmt.Errorf("image is %d bytes, limit is %d", file.Size, h.maxImageSize))
	}

	f, err := file.Open()
	if err != nil {
		return domain.ProbeImage{}, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.ProbeImage{}, domain.ErrInvalidImage.WithError(err)
	}

	return domain.ProbeImage{
		Data:        data,
		ContentType: file.Header.Get("Content-Type"),
	}, nil
}
