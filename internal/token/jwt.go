package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/studentid/internal/domain"
)

var (
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when token is expired
	ErrExpiredToken = errors.New("token expired")
	// ErrWrongTokenType is returned when a refresh token is used as access token or vice versa
	ErrWrongTokenType = errors.New("wrong token type")
)

type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Identity is who a token is issued for
type Identity struct {
	UserID    uuid.UUID
	Email     string
	Role      domain.Role
	StudentID *uuid.UUID
}

// Claims represents JWT claims for students and admins
type Claims struct {
	UserID    uuid.UUID   `json:"user_id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	StudentID *uuid.UUID  `json:"student_id,omitempty"`
	Type      Type        `json:"typ"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role, StudentID: c.StudentID}
}

// Pair is an access token plus the refresh token that renews it
type Pair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer signs and validates HS256 tokens
type Issuer struct {
	secretKey  []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg Config) *Issuer {
	return &Issuer{
		secretKey:  []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// Issue generates an access and refresh token for id
func (s *Issuer) Issue(id Identity) (*Pair, error) {
	access, err := s.sign(id, TypeAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(id, TypeRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Issuer) sign(id Identity, typ Type, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    id.UserID,
		Email:     id.Email,
		Role:      id.Role,
		StudentID: id.StudentID,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// Validate parses an access token
func (s *Issuer) Validate(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TypeAccess)
}

// Refresh exchanges a refresh token for a new pair
func (s *Issuer) Refresh(refreshToken string) (*Pair, error) {
	claims, err := s.parse(refreshToken, TypeRefresh)
	if err != nil {
		return nil, err
	}
	return s.Issue(claims.Identity())
}

func (s *Issuer) parse(tokenString string, want Type) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
