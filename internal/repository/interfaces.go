package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool used by repositories; pgxmock satisfies it in tests
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// StudentRepositoryInterface defines operations for student data access
type StudentRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Student, error)
	ListGallery(ctx context.Context) ([]domain.GalleryEntry, error)
	UpdateFaceImage(ctx context.Context, id uuid.UUID, imageRef, fingerprint string) error
	Count(ctx context.Context) (int, error)
	CountWithFaces(ctx context.Context) (int, error)
	Create(ctx context.Context, student *domain.Student) error
}

// UserRepositoryInterface defines operations for login accounts
type UserRepositoryInterface interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
}

// AdminRepositoryInterface defines operations for administrator profiles
type AdminRepositoryInterface interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Admin, error)
	Create(ctx context.Context, admin *domain.Admin) error
}

// RecognitionLogRepositoryInterface defines operations for the recognition audit trail
type RecognitionLogRepositoryInterface interface {
	Create(ctx context.Context, log *domain.RecognitionLog) error
	List(ctx context.Context, filter domain.RecognitionLogFilter) ([]domain.RecognitionLog, error)
	Stats(ctx context.Context, since time.Time) (*LogStats, error)
}
