package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

// FailureResponse wraps ErrorResponse the way every failed request is rendered
type FailureResponse struct {
	Success bool          `json:"success" example:"false"`
	Error   ErrorResponse `json:"error"`
}

// StudentData is the student payload returned on recognition and registration
type StudentData struct {
	ID           string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID       string `json:"user_id" example:"6ba7b810-9dad-11d1-80b4-00c04fd430c8"`
	Email        string `json:"email" example:"ada@uni.edu"`
	FirstName    string `json:"first_name" example:"Ada"`
	LastName     string `json:"last_name" example:"Obi"`
	MatricNumber string `json:"matric_number" example:"CSC/2021/001"`
	Department   string `json:"department" example:"Computer Science"`
	ClassYear    string `json:"class_year" example:"300"`
	FaceImage    string `json:"face_image,omitempty" example:"student_faces/9f86d081884c7d65.jpg"`
}

// RecognizeAcceptedResponse is returned when the probe matches a student
type RecognizeAcceptedResponse struct {
	Success          bool        `json:"success" example:"true"`
	Outcome          string      `json:"outcome" example:"ACCEPTED"`
	Confidence       float64     `json:"confidence" example:"0.87"`
	Student          StudentData `json:"student"`
	Token            string      `json:"token" example:"eyJhbGciOiJIUzI1NiIs..."`
	Refresh          string      `json:"refresh" example:"eyJhbGciOiJIUzI1NiIs..."`
	ProcessingTimeMs int64       `json:"processing_time_ms" example:"412"`
	LogID            string      `json:"log_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
}

// RecognizeFailedResponse is returned for every outcome other than ACCEPTED
type RecognizeFailedResponse struct {
	Success          bool          `json:"success" example:"false"`
	Outcome          string        `json:"outcome" example:"NO_MATCH"`
	Confidence       float64       `json:"confidence,omitempty" example:"0.31"`
	ProcessingTimeMs int64         `json:"processing_time_ms" example:"388"`
	LogID            string        `json:"log_id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	Error            ErrorResponse `json:"error"`
}

// RegisterFaceResponse represents the response for a successful face registration
type RegisterFaceResponse struct {
	Success bool        `json:"success" example:"true"`
	Message string      `json:"message" example:"Face registered successfully"`
	Student StudentData `json:"student"`
}

// RecognitionLogData is one audit record
type RecognitionLogData struct {
	ID               string  `json:"id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	StudentID        string  `json:"student_id,omitempty" example:"550e8400-e29b-41d4-a716-446655440000"`
	Outcome          string  `json:"outcome" example:"ACCEPTED"`
	Success          bool    `json:"success" example:"true"`
	Confidence       float64 `json:"confidence" example:"0.87"`
	ProcessingTimeMs int64   `json:"processing_time_ms" example:"412"`
	TimedOut         bool    `json:"timed_out" example:"false"`
	Candidates       int     `json:"candidates" example:"120"`
	Skipped          int     `json:"skipped" example:"0"`
	ErrorCode        string  `json:"error_code,omitempty" example:""`
	Image            string  `json:"image,omitempty" example:"recognition_logs/2c26b46b68ffc68f.jpg"`
	CreatedAt        string  `json:"created_at" example:"2024-05-01T08:15:00Z"`
}

// LogsResponse lists recognition attempts
type LogsResponse struct {
	Success bool                 `json:"success" example:"true"`
	Logs    []RecognitionLogData `json:"logs"`
	Count   int                  `json:"count" example:"1"`
}

// DashboardStatsResponse summarizes recognition activity
type DashboardStatsResponse struct {
	TotalStudents   int     `json:"total_students" example:"120"`
	RegisteredFaces int     `json:"registered_faces" example:"97"`
	VerifiedToday   int     `json:"verified_today" example:"31"`
	FailedAttempts  int     `json:"failed_attempts" example:"4"`
	AverageScanTime float64 `json:"average_scan_time" example:"1.2"`
}

// LoginRequest carries the account credentials
type LoginRequest struct {
	Email    string `json:"email" example:"ada@uni.edu"`
	Password string `json:"password" example:"s3cret"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	Refresh string `json:"refresh" example:"eyJhbGciOiJIUzI1NiIs..."`
}

// TokenPairData is an access token plus its refresh token
type TokenPairData struct {
	Access    string `json:"access" example:"eyJhbGciOiJIUzI1NiIs..."`
	Refresh   string `json:"refresh" example:"eyJhbGciOiJIUzI1NiIs..."`
	ExpiresIn int64  `json:"expires_in" example:"900"`
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Success bool          `json:"success" example:"true"`
	Tokens  TokenPairData `json:"tokens"`
	Role    string        `json:"role" example:"student"`
	Student *StudentData  `json:"student,omitempty"`
}

// TokenResponse is returned on token refresh
type TokenResponse struct {
	Success   bool   `json:"success" example:"true"`
	Access    string `json:"access" example:"eyJhbGciOiJIUzI1NiIs..."`
	Refresh   string `json:"refresh" example:"eyJhbGciOiJIUzI1NiIs..."`
	ExpiresIn int64  `json:"expires_in" example:"900"`
}

var bearer = endpoint.WithSecurity([]map[string][]string{{"BearerAuth": {}}})

func failure(code, message, status, description string) response.Response {
	return response.New(FailureResponse{Error: ErrorResponse{Code: code, Message: message}}, status, description)
}

// NewSwagger creates and configures the Swagger documentation
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Student Identity API",
		Version:     "v1.0.0",
		Description: "Face recognition for student identity verification against the enrolled gallery",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/recognition/recognize - identify a student (1:N)
		endpoint.New(
			endpoint.POST,
			"/recognition/recognize",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("Recognize a student from a face image"),
			endpoint.WithDescription("Compares the face in the multipart 'image' field against every enrolled student. Every attempt is written to the recognition log. A match issues an access and refresh token for the student."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RecognizeAcceptedResponse{}, "200", "Student recognized"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(RecognizeFailedResponse{Outcome: "NO_FACE", Error: ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image"}}, "400", "No face in probe"),
				response.New(RecognizeFailedResponse{Outcome: "NO_MATCH", Confidence: 0.31, Error: ErrorResponse{Code: "NO_MATCH", Message: "No registered student matches the image"}}, "404", "No match or empty gallery"),
				response.New(RecognizeFailedResponse{Outcome: "ERROR", Error: ErrorResponse{Code: "INVALID_IMAGE", Message: "Image could not be decoded"}}, "422", "Unprocessable Entity"),
				failure("RATE_LIMIT_EXCEEDED", "Rate limit exceeded", "429", "Too Many Requests"),
				response.New(RecognizeFailedResponse{Outcome: "ERROR", Error: ErrorResponse{Code: "ENGINE_FAILURE", Message: "Face engine failed to process the image"}}, "500", "Internal Server Error"),
				response.New(RecognizeFailedResponse{Outcome: "RESOURCE_EXHAUSTED", Error: ErrorResponse{Code: "RESOURCE_EXHAUSTED", Message: "Server is busy, please retry later"}}, "503", "Service Unavailable"),
				response.New(RecognizeFailedResponse{Outcome: "ERROR", Error: ErrorResponse{Code: "TIMEOUT", Message: "Recognition timed out"}}, "504", "Gateway Timeout"),
			}),
		),

		// POST /v1/recognition/register-face - enroll or replace a reference image
		endpoint.New(
			endpoint.POST,
			"/recognition/register-face",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("Register a student's face"),
			endpoint.WithDescription("Stores the multipart 'image' as the reference face of 'student_id'. The image must contain at least one face. Admins may register any student; students only themselves."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RegisterFaceResponse{}, "200", "Face registered successfully"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("NO_FACE_DETECTED", "No face detected in image", "400", "Bad Request"),
				failure("UNAUTHORIZED", "Authentication required", "401", "Unauthorized"),
				failure("FORBIDDEN", "Access denied", "403", "Forbidden"),
				failure("STUDENT_NOT_FOUND", "Student not found", "404", "Not Found"),
				failure("VALIDATION_FAILED", "student_id is required", "422", "Unprocessable Entity"),
				failure("INTERNAL_ERROR", "An unexpected error occurred", "500", "Internal Server Error"),
			}),
			bearer,
		),

		// GET /v1/recognition/logs - audit trail
		endpoint.New(
			endpoint.GET,
			"/recognition/logs",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("List recognition attempts"),
			endpoint.WithDescription("Returns recognition log records, newest first"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("success", parameter.Query, parameter.WithDescription("Filter by success (true|false)")),
				parameter.StrParam("outcome", parameter.Query, parameter.WithDescription("Filter by outcome (ACCEPTED, NO_FACE, NO_MATCH, NO_GALLERY, RESOURCE_EXHAUSTED, ERROR)")),
				parameter.StrParam("student_id", parameter.Query, parameter.WithDescription("Filter by matched student")),
				parameter.StrParam("since", parameter.Query, parameter.WithDescription("RFC3339 lower bound on created_at")),
				parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Page size (default 50, max 200)")),
				parameter.IntParam("offset", parameter.Query, parameter.WithDescription("Records to skip")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(LogsResponse{}, "200", "Records retrieved successfully"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("UNAUTHORIZED", "Authentication required", "401", "Unauthorized"),
				failure("FORBIDDEN", "Access denied", "403", "Forbidden"),
				failure("VALIDATION_FAILED", "Request validation failed", "422", "Unprocessable Entity"),
			}),
			bearer,
		),

		// GET /v1/recognition/dashboard-stats
		endpoint.New(
			endpoint.GET,
			"/recognition/dashboard-stats",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("Dashboard statistics"),
			endpoint.WithDescription("Totals for enrolled students and today's recognition activity (UTC day). Average scan time is in seconds."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DashboardStatsResponse{}, "200", "Statistics retrieved successfully"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("UNAUTHORIZED", "Authentication required", "401", "Unauthorized"),
				failure("FORBIDDEN", "Access denied", "403", "Forbidden"),
			}),
			bearer,
		),

		// POST /v1/auth/login
		endpoint.New(
			endpoint.POST,
			"/auth/login",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Log in with email and password"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(LoginRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(LoginResponse{}, "200", "Logged in"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("INVALID_CREDENTIALS", "Invalid email or password", "401", "Unauthorized"),
				failure("FORBIDDEN", "Access denied", "403", "Forbidden"),
				failure("VALIDATION_FAILED", "email and password are required", "422", "Unprocessable Entity"),
				failure("RATE_LIMIT_EXCEEDED", "Rate limit exceeded, please try again later", "429", "Too many failed logins"),
			}),
		),

		// POST /v1/auth/refresh
		endpoint.New(
			endpoint.POST,
			"/auth/refresh",
			endpoint.WithTags("Auth"),
			endpoint.WithSummary("Exchange a refresh token for a new pair"),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithBody(RefreshRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(TokenResponse{}, "200", "Token refreshed"),
			}),
			endpoint.WithErrors([]response.Response{
				failure("UNAUTHORIZED", "Authentication required", "401", "Unauthorized"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
