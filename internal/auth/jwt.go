package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenAccess = "access"
	TokenVerify = "verify"
	TokenReset  = "reset"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenWrongType = errors.New("invalid token type")
	ErrTokenRevoked   = errors.New("token revoked")
)

type Claims struct {
	UserID    int64  `json:"userId"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Denylist stores revoked token ids until the token would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type Manager struct {
	secret    []byte
	accessTTL time.Duration
	verifyTTL time.Duration
	resetTTL  time.Duration
	denylist  Denylist
	now       func() time.Time
}

func NewManager(secret string, accessTTL, verifyTTL, resetTTL time.Duration) *Manager {
	return &Manager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		verifyTTL: verifyTTL,
		resetTTL:  resetTTL,
		now:       time.Now,
	}
}

// WithDenylist enables jti revocation checks on access tokens.
func (m *Manager) WithDenylist(d Denylist) *Manager {
	m.denylist = d
	return m
}

func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

func (m *Manager) GenerateAccessToken(userID int64) (string, error) {
	return m.sign(userID, TokenAccess, m.accessTTL)
}

func (m *Manager) GenerateVerifyToken(userID int64) (string, error) {
	return m.sign(userID, TokenVerify, m.verifyTTL)
}

func (m *Manager) GenerateResetToken(userID int64) (string, error) {
	return m.sign(userID, TokenReset, m.resetTTL)
}

func (m *Manager) sign(userID int64, typ string, ttl time.Duration) (string, error) {
	now := m.now().UTC()

	claims := Claims{
		UserID:    userID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) ParseAndValidate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) verifyType(tokenStr, typ string) (*Claims, error) {
	claims, err := m.ParseAndValidate(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != typ {
		return nil, ErrTokenWrongType
	}
	return claims, nil
}

func (m *Manager) VerifyAccessToken(ctx context.Context, tokenStr string) (*Claims, error) {
	claims, err := m.verifyType(tokenStr, TokenAccess)
	if err != nil {
		return nil, err
	}

	if m.denylist != nil && claims.ID != "" {
		revoked, err := m.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

func (m *Manager) VerifyEmailToken(tokenStr string) (*Claims, error) {
	return m.verifyType(tokenStr, TokenVerify)
}

func (m *Manager) VerifyResetToken(tokenStr string) (*Claims, error) {
	return m.verifyType(tokenStr, TokenReset)
}

// Revoke denylists an access token for the rest of its lifetime.
// It is a no-op without a denylist or for tokens that no longer verify.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) error {
	if m.denylist == nil || tokenStr == "" {
		return nil
	}

	claims, err := m.verifyType(tokenStr, TokenAccess)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}

	ttl := claims.ExpiresAt.Time.Sub(m.now())
	if ttl <= 0 {
		return nil
	}
	return m.denylist.Revoke(ctx, claims.ID, ttl)
}
