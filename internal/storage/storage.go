package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	StudentFacesDir    = "student_faces"
	RecognitionLogsDir = "recognition_logs"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrInvalidRef    = errors.New("invalid image reference")
)

var extensionsByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
}

// Fingerprint returns the lowercase hex SHA-256 of the image bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LocalStore keeps images on disk under root, content-addressed by fingerprint.
// References are slash-separated paths relative to root, e.g.
// "student_faces/<fingerprint>.jpg".
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create media root %s: %w", abs, err)
	}
	return &LocalStore{root: abs}, nil
}

// Save writes data under dir and returns its reference and fingerprint.
// Saving identical bytes twice is a no-op returning the same reference.
func (s *LocalStore) Save(ctx context.Context, dir string, data []byte) (ref, fingerprint string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	fingerprint = Fingerprint(data)
	ref = dir + "/" + fingerprint + extensionFor(data)

	path, err := s.path(ref)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(path); err == nil {
		return ref, fingerprint, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", "", fmt.Errorf("create image directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp image: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", "", fmt.Errorf("store image %s: %w", ref, err)
	}

	return ref, fingerprint, nil
}

// Load reads the image behind ref.
func (s *LocalStore) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
		}
		return nil, fmt.Errorf("read image %s: %w", ref, err)
	}
	return data, nil
}

// Ping verifies the media root is still reachable.
func (s *LocalStore) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("media root unavailable: %w", err)
	}
	return nil
}

func (s *LocalStore) path(ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.root, clean), nil
}

func extensionFor(data []byte) string {
	if ext, ok := extensionsByType[http.DetectContentType(data)]; ok {
		return ext
	}
	return ".img"
}
