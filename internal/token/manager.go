package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trivia-service/internal/domain"
)

// Default validity window and clock-skew tolerance. Leeway is applied on
// both the exp and nbf/iat bounds during validation; it is a deliberate,
// documented tolerance rather than an ad hoc fudge.
const (
	DefaultTTL    = 30 * time.Minute
	DefaultLeeway = 60 * time.Second
)

// Config holds the process-wide signing parameters. The secret is loaded
// once at startup and never logged.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Leeway time.Duration
	Issuer string

	// Now overrides the clock, for expiry-boundary tests.
	Now func() time.Time
}

// Manager issues and validates signed, time-bounded credentials binding a
// subject identity. Validation is pure: no I/O beyond the HMAC check, so it
// is safe and cheap to run on every request.
type Manager struct {
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: signing secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway must be within [0, 2m]")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}, nil
}

// Issue signs a credential for subjectID with the configured validity
// window. It never fails for a non-empty subject.
func (m *Manager) Issue(subjectID string) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("token: %w: empty subject", domain.ErrInvalidInput)
	}
	now := m.cfg.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.Secret)
}

// Validate verifies the signature and time bounds of a credential and
// returns the embedded subject id. Any failure, including expiry and
// tampering, maps to domain.ErrInvalidCredential.
func (m *Manager) Validate(credential string) (string, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.cfg.Now),
	}
	if m.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(credential, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	}, options...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", domain.ErrInvalidCredential
	}
	return claims.Subject, nil
}
