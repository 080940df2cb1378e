// Package token mints and verifies the signed access/refresh token pairs
// used by the authentication engine.
//
// Access and refresh tokens are independently signed HS256 JWTs with
// distinct secrets, so a token of one class can never verify as the other.
// A "use" claim pins the class a second time on top of the key split.
package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrExpired is returned when a structurally valid token is past its expiry.
// Callers use this to decide that a refresh attempt is still worthwhile.
var ErrExpired = errors.New("token expired")

// ErrInvalid is returned for malformed tokens, bad signatures, and tokens
// presented to the wrong verifier. Re-login is the only recovery.
var ErrInvalid = errors.New("token invalid")

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Config holds the signing material and expiry policy. Both secrets are
// required and must differ; Manager construction fails otherwise, which the
// engine treats as a fatal startup condition.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RememberMeRefreshTTL time.Duration

	Issuer string
}

// Claims is the payload carried by both token classes.
type Claims struct {
	Role       string `json:"role"`
	SessionID  string `json:"sid,omitempty"`
	RememberMe bool   `json:"rme,omitempty"`
	Use        string `json:"use"`
	jwt.RegisteredClaims
}

// Pair is an issued access/refresh token pair with computed expiries.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager issues and verifies token pairs. Immutable after construction and
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the signing configuration. Missing secrets, equal
// secrets, or non-positive TTLs are configuration defects, not runtime
// conditions.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access signing secret required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh signing secret required")
	}
	if len(cfg.AccessSecret) == len(cfg.RefreshSecret) &&
		subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.RefreshTTL <= 0 || cfg.RememberMeRefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}

	return &Manager{config: cfg}, nil
}

// RefreshTTL returns the refresh lifetime for the given remember-me tier.
func (m *Manager) RefreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return m.config.RememberMeRefreshTTL
	}
	return m.config.RefreshTTL
}

// IssuePair mints an access/refresh pair for the subject. The session id and
// remember-me tier are embedded in the refresh token so rotation can preserve
// them without a store round-trip.
//
// Every token carries a fresh jti. The timestamp claims truncate to whole
// seconds, so without it two pairs minted for the same subject within one
// second would serialize to identical strings — and a rotation in the same
// second as the prior issuance would hand back the value it was retiring.
func (m *Manager) IssuePair(subject, role, sessionID string, rememberMe bool) (Pair, error) {
	now := time.Now()
	accessExpiry := now.Add(m.config.AccessTTL)
	refreshExpiry := now.Add(m.RefreshTTL(rememberMe))

	access, err := m.sign(Claims{
		Role:      role,
		SessionID: sessionID,
		Use:       useAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
	}, m.config.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := m.sign(Claims{
		Role:       role,
		SessionID:  sessionID,
		RememberMe: rememberMe,
		Use:        useRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
		},
	}, m.config.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// VerifyAccess validates signature and expiry of an access token.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, useAccess, m.config.AccessSecret)
}

// VerifyRefresh validates signature and expiry of a refresh token.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, useRefresh, m.config.RefreshSecret)
}

func (m *Manager) sign(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) verify(tokenStr, use string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.Use != use {
		return nil, fmt.Errorf("%w: wrong token class", ErrInvalid)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}

	return claims, nil
}
