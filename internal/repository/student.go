package repository

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

type StudentRepository struct {
	pool PgxPool
}

func NewStudentRepository(pool PgxPool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

func selectStudent() sq.SelectBuilder {
	return psql.Select(
		"s.id", "s.user_id", "u.email", "s.first_name", "s.last_name", "s.matric_number",
		"s.faculty", "s.department", "s.class_year", "s.course", "s.grade",
		"s.face_image", "s.face_fingerprint", "s.created_at", "s.updated_at",
	).
		From("students s").
		Join("users u ON u.id = s.user_id")
}

func (r *StudentRepository) getOne(ctx context.Context, op string, where sq.Eq) (*domain.Student, error) {
	query, args, err := selectStudent().Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	var s domain.Student
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.Email,
		&s.FirstName,
		&s.LastName,
		&s.MatricNumber,
		&s.Faculty,
		&s.Department,
		&s.ClassYear,
		&s.Course,
		&s.Grade,
		&s.FaceImageRef,
		&s.FaceFingerprint,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &s, nil
}

func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	return r.getOne(ctx, "get student by id", sq.Eq{"s.id": id})
}

func (r *StudentRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Student, error) {
	return r.getOne(ctx, "get student by user id", sq.Eq{"s.user_id": userID})
}

// ListGallery returns every student with a registered face in a stable order.
func (r *StudentRepository) ListGallery(ctx context.Context) ([]domain.GalleryEntry, error) {
	query, args, err := psql.Select("id", "matric_number", "face_image", "face_fingerprint").
		From("students").
		Where(sq.NotEq{"face_image": ""}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("list gallery: build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}
	defer rows.Close()

	var entries []domain.GalleryEntry
	for rows.Next() {
		var e domain.GalleryEntry
		if err := rows.Scan(&e.StudentID, &e.MatricNumber, &e.ImageRef, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery: %w", err)
	}

	return entries, nil
}

func (r *StudentRepository) UpdateFaceImage(ctx context.Context, id uuid.UUID, imageRef, fingerprint string) error {
	query := `
		UPDATE students
		SET face_image = $2, face_fingerprint = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, imageRef, fingerprint)
	if err != nil {
		return fmt.Errorf("update face image: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrStudentNotFound
	}

	return nil
}

func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}

func (r *StudentRepository) CountWithFaces(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM students WHERE face_image <> ''`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count registered faces: %w", err)
	}
	return count, nil
}

func (r *StudentRepository) Create(ctx context.Context, student *domain.Student) error {
	query := `
		INSERT INTO students (id, user_id, first_name, last_name, matric_number, faculty, department,
			class_year, course, grade, face_image, face_fingerprint, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx, query,
		student.ID,
		student.UserID,
		student.FirstName,
		student.LastName,
		student.MatricNumber,
		student.Faculty,
		student.Department,
		student.ClassYear,
		student.Course,
		student.Grade,
		student.FaceImageRef,
		student.FaceFingerprint,
	).Scan(&student.CreatedAt, &student.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return &domain.AppError{
				Code:       "STUDENT_ALREADY_EXISTS",
				Message:    "Student with this matric number already exists",
				StatusCode: 409,
			}
		}
		return fmt.Errorf("create student: %w", err)
	}

	return nil
}
