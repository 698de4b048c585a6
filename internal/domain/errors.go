package domain

import (
	"fmt"
	"net/http"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so sentinels survive WithError.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

// WithError returns a copy carrying err as the cause
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

var (
	ErrInternal           = newAppError(http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	ErrBadRequest         = newAppError(http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
	ErrUnauthorized       = newAppError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing access token")
	ErrInvalidCredentials = newAppError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	ErrForbidden          = newAppError(http.StatusForbidden, "FORBIDDEN", "Access denied")
	ErrNotFound           = newAppError(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrStudentNotFound    = newAppError(http.StatusNotFound, "STUDENT_NOT_FOUND", "Student not found")
	ErrUserNotFound       = newAppError(http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	ErrRateLimitExceeded  = newAppError(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded, please try again later")
	ErrValidationFailed   = newAppError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Request validation failed")

	// Recognition
	ErrInvalidImage        = newAppError(http.StatusUnprocessableEntity, "INVALID_IMAGE", "Invalid image format or corrupted file")
	ErrNoFaceDetected      = newAppError(http.StatusBadRequest, "NO_FACE_DETECTED", "No face detected in the image")
	ErrNoGalleryCandidates = newAppError(http.StatusNotFound, "NO_GALLERY_CANDIDATES", "No registered faces to compare against")
	ErrNoMatch             = newAppError(http.StatusNotFound, "NO_MATCH", "Face not recognized")
	ErrResourceExhausted   = newAppError(http.StatusServiceUnavailable, "RESOURCE_EXHAUSTED", "Server is busy, please retry later")
	ErrEngineFailure       = newAppError(http.StatusInternalServerError, "ENGINE_FAILURE", "Embedding engine failed to process the image")
	ErrEngineUnavailable   = newAppError(http.StatusInternalServerError, "ENGINE_UNAVAILABLE", "Embedding engine is unavailable")
	ErrTimeout             = newAppError(http.StatusGatewayTimeout, "TIMEOUT", "Recognition timed out")
	ErrFingerprintMismatch = newAppError(http.StatusInternalServerError, "FINGERPRINT_MISMATCH", "Stored image does not match its recorded fingerprint")
	ErrInvalidThreshold    = newAppError(http.StatusUnprocessableEntity, "INVALID_THRESHOLD", "Threshold must be between 0 and 1")
)
