package service

import (
	"errors"
	"fmt"
	"time"

	"ecobee_automation/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Domain errors for auth flows.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUnknownUser     = errors.New("unknown user")
	ErrInvalidToken    = errors.New("invalid token")
)

// AuthService guards the facade with a single service account from
// configuration: one username, one bcrypt hash, one HMAC signing key. There
// is no user store; the facade is an internal control surface, not a
// multi-tenant product.
type AuthService struct {
	username     string
	passwordHash string
	signingKey   []byte
	tokenTTL     time.Duration
}

func NewAuthService(cfg config.API) *AuthService {
	return &AuthService{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		signingKey:   []byte(cfg.SigningKey),
		tokenTTL:     cfg.TokenTTL,
	}
}

// Claims defines JWT claims
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken validates credentials against the service account and
// returns a signed JWT.
func (s *AuthService) GenerateToken(username, password string) (string, error) {
	if username != s.username {
		return "", ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}
	return s.issueToken(username)
}

// ParseToken parses the JWT and returns the subject it was issued to.
func (s *AuthService) ParseToken(accessToken string) (string, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure HMAC signing is used
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

func (s *AuthService) issueToken(subject string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	return token.SignedString(s.signingKey)
}
