package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/saturnino-fabrica-de-software/studentid/internal/audit"
	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
	"github.com/saturnino-fabrica-de-software/studentid/internal/repository"
	"github.com/saturnino-fabrica-de-software/studentid/internal/token"
)

type LoginResult struct {
	Tokens  *token.Pair     `json:"tokens"`
	User    *domain.User    `json:"user"`
	Role    domain.Role     `json:"role"`
	Student *domain.Student `json:"student,omitempty"`
	Admin   *domain.Admin   `json:"admin,omitempty"`
}

// LoginGuard throttles repeated wrong passwords for one account
type LoginGuard interface {
	Allowed(ctx context.Context, email string) (bool, error)
	Fail(ctx context.Context, email string) (int, error)
	Reset(ctx context.Context, email string) error
}

type AuthService struct {
	users    repository.UserRepositoryInterface
	students repository.StudentRepositoryInterface
	admins   repository.AdminRepositoryInterface
	tokens   TokenIssuer
	audit    AuditRecorder
	guard    LoginGuard
	logger   *slog.Logger
}

func NewAuthService(
	users repository.UserRepositoryInterface,
	students repository.StudentRepositoryInterface,
	admins repository.AdminRepositoryInterface,
	tokens TokenIssuer,
	recorder AuditRecorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		students: students,
		admins:   admins,
		tokens:   tokens,
		audit:    recorder,
		logger:   logger.With("component", "auth"),
	}
}

// WithLoginGuard enables failed-login throttling
func (s *AuthService) WithLoginGuard(guard LoginGuard) *AuthService {
	s.guard = guard
	return s
}

// Login checks email and password and issues a token pair for the account's role
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !s.loginAllowed(ctx, email) {
		s.audit.Emit(ctx, audit.Event{EventType: audit.EventLogin, Error: domain.ErrRateLimitExceeded.Code})
		return nil, domain.ErrRateLimitExceeded
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		// keep timing close to the wrong-password path
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.loginFailed(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.audit.Emit(ctx, audit.Event{EventType: audit.EventLogin, UserID: user.ID.String(), Error: "INVALID_CREDENTIALS"})
		s.loginFailed(ctx, email)
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, domain.ErrForbidden
	}

	result := &LoginResult{User: user}
	id := token.Identity{UserID: user.ID, Email: user.Email}

	admin, err := s.admins.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		result.Role, result.Admin = domain.RoleAdmin, admin
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	case user.IsStaff:
		result.Role = domain.RoleAdmin
	default:
		student, err := s.students.GetByUserID(ctx, user.ID)
		if errors.Is(err, domain.ErrStudentNotFound) {
			return nil, domain.ErrForbidden
		}
		if err != nil {
			return nil, err
		}
		result.Role, result.Student = domain.RoleStudent, student
		id.StudentID = &student.ID
	}

	id.Role = result.Role
	pair, err := s.tokens.Issue(id)
	if err != nil {
		return nil, domain.ErrInternal.WithError(err)
	}
	result.Tokens = pair

	if s.guard != nil {
		if err := s.guard.Reset(ctx, email); err != nil {
			s.logger.Warn("failed to reset login attempts", "user_id", user.ID, "error", err)
		}
	}

	s.audit.Emit(ctx, audit.Event{EventType: audit.EventLogin, UserID: user.ID.String(), Success: true})
	s.logger.Info("user logged in", "user_id", user.ID, "role", result.Role)

	return result, nil
}

// loginAllowed fails open: an unreachable counter must not lock everyone out
func (s *AuthService) loginAllowed(ctx context.Context, email string) bool {
	if s.guard == nil {
		return true
	}
	allowed, err := s.guard.Allowed(ctx, email)
	if err != nil {
		s.logger.Warn("login attempt check failed", "error", err)
		return true
	}
	return allowed
}

func (s *AuthService) loginFailed(ctx context.Context, email string) {
	if s.guard == nil {
		return
	}
	if _, err := s.guard.Fail(ctx, email); err != nil {
		s.logger.Warn("failed to record login attempt", "error", err)
	}
}

// Refresh exchanges a refresh token for a fresh pair
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	pair, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return nil, domain.ErrUnauthorized.WithError(err)
	}
	return pair, nil
}

// HashPassword returns the bcrypt hash stored in users.password_hash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// bcrypt of a random string, used when the email is unknown
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX6S1bIqRkD0hCJ1zCHo4xuZ9W6")
