package deepface

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var oomWord = regexp.MustCompile(`\boom\b`)

var (
	ErrDeepFaceUnavailable = errors.New("deepface service unavailable")
	ErrInvalidResponse     = errors.New("invalid response from deepface")
)

// StatusError carries a non-2xx reply from the sidecar
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("deepface returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (e *StatusError) serverError() bool {
	return e.StatusCode >= 500
}

// resourceExhausted reports replies meaning the sidecar ran out of memory or capacity
func (e *StatusError) resourceExhausted() bool {
	if e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusInsufficientStorage {
		return true
	}
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "out of memory") || strings.Contains(body, "resource exhausted") ||
		oomWord.MatchString(body)
}

// noFace reports the detector's "face could not be detected" rejection
func (e *StatusError) noFace() bool {
	if !e.clientError() {
		return false
	}
	body := strings.ToLower(e.Body)
	return strings.Contains(body, "face could not be detected") || strings.Contains(body, "no face")
}
