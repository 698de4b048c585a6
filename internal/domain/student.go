package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// User representa a conta de login (email único)
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Student representa um estudante cadastrado; FaceImageRef vazio = fora da galeria
type Student struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	MatricNumber    string    `json:"matric_number"`
	Faculty         string    `json:"faculty,omitempty"`
	Department      string    `json:"department"`
	ClassYear       string    `json:"class_year"`
	Course          string    `json:"course,omitempty"`
	Grade           string    `json:"grade,omitempty"`
	FaceImageRef    string    `json:"face_image,omitempty"`
	FaceFingerprint string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Student) HasFace() bool {
	return s.FaceImageRef != ""
}

// Admin representa um administrador
type Admin struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Faculty   string    `json:"faculty,omitempty"`
}

// GalleryEntry é um estudante com imagem de referência registrada
type GalleryEntry struct {
	StudentID    uuid.UUID `json:"student_id"`
	MatricNumber string    `json:"matric_number"`
	ImageRef     string    `json:"image_ref"`
	Fingerprint  string    `json:"fingerprint"`
}
