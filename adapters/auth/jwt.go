// Package auth provides stateless authentication using JWT.
// Designed for horizontal scaling - no shared state between instances.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/artpar/meterd/domain/identity"
	"github.com/artpar/meterd/ports"
)

// Claims represents the JWT claims carried by metered API callers.
type Claims struct {
	UserID     string `json:"uid"`
	CustomerID string `json:"customer_id"`
	Plan       string `json:"plan"`
	jwt.RegisteredClaims
}

// TokenService provides stateless JWT token operations.
// Thread-safe and suitable for concurrent use.
type TokenService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewTokenService creates a new JWT token service.
// If secret is empty, a random 32-byte secret is generated.
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	var secretBytes []byte
	if secret == "" {
		secretBytes = make([]byte, 32)
		rand.Read(secretBytes)
	} else {
		secretBytes = []byte(secret)
	}

	if expiration == 0 {
		expiration = 24 * time.Hour
	}

	return &TokenService{
		secret:     secretBytes,
		issuer:     "meterd",
		expiration: expiration,
	}
}

// GenerateToken creates a new JWT token for the given caller.
func (s *TokenService) GenerateToken(userID, customerID, planName string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.expiration)

	claims := Claims{
		UserID:     userID,
		CustomerID: customerID,
		Plan:       planName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Resolve extracts the caller identity from a Bearer token. Requests
// without a valid token resolve to no identity; rejecting them is the
// caller's decision, not this layer's.
func (s *TokenService) Resolve(r *http.Request) (identity.Principal, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return identity.Principal{}, false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return identity.Principal{}, false
	}

	claims, err := s.ValidateToken(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return identity.Principal{}, false
	}
	if claims.UserID == "" {
		return identity.Principal{}, false
	}

	return identity.Principal{
		UserID:     claims.UserID,
		CustomerID: claims.CustomerID,
		Plan:       claims.Plan,
	}, true
}

var _ ports.IdentityResolver = (*TokenService)(nil)

// GenerateSecret generates a random secret suitable for JWT signing.
func GenerateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
