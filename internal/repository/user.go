package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

type UserRepository struct {
	pool PgxPool
}

func NewUserRepository(pool PgxPool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row, op string) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.IsActive,
		&u.IsStaff,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, is_active, is_staff, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))), "get user by email")
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, email, password_hash, is_active, is_staff, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return scanUser(r.pool.QueryRow(ctx, query, id), "get user by id")
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, is_active, is_staff, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	err := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.IsActive,
		user.IsStaff,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AppError{
				Code:       "USER_ALREADY_EXISTS",
				Message:    "User with this email already exists",
				StatusCode: 409,
			}
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

type AdminRepository struct {
	pool PgxPool
}

func NewAdminRepository(pool PgxPool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

func (r *AdminRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Admin, error) {
	query := `
		SELECT id, user_id, username, first_name, last_name, faculty
		FROM admins
		WHERE user_id = $1
	`

	var a domain.Admin
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&a.ID,
		&a.UserID,
		&a.Username,
		&a.FirstName,
		&a.LastName,
		&a.Faculty,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin by user id: %w", err)
	}

	return &a, nil
}

func (r *AdminRepository) Create(ctx context.Context, admin *domain.Admin) error {
	query := `
		INSERT INTO admins (id, user_id, username, first_name, last_name, faculty)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, query,
		admin.ID,
		admin.UserID,
		admin.Username,
		admin.FirstName,
		admin.LastName,
		admin.Faculty,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AppError{
				Code:       "ADMIN_ALREADY_EXISTS",
				Message:    "Admin with this username already exists",
				StatusCode: 409,
			}
		}
		return fmt.Errorf("create admin: %w", err)
	}

	return nil
}
