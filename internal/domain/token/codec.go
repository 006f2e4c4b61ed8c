package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failures callers can branch on. Both map to an
// unauthenticated outcome at the transport layer; the split exists for
// diagnostics.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims carries the merchant identity inside a signed token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 JWTs with a fixed lifetime. Access and
// refresh tokens each get their own Codec built from a distinct secret,
// so a leaked access token can never verify as a refresh token.
type Codec struct {
	secretKey []byte
	ttl       time.Duration
}

// NewCodec builds a codec from the provided secret. An empty secret is a
// configuration fault and fails construction rather than every call.
func NewCodec(secretKey string, ttl time.Duration) (*Codec, error) {
	if secretKey == "" {
		return nil, errors.New("token codec secret key cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token codec ttl must be positive")
	}
	return &Codec{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}, nil
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue produces a signed token for the identity together with its
// expiry instant.
func (c *Codec) Issue(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(c.ttl)
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature integrity and expiry, returning the embedded
// identity. Verification never mutates state: verifying the same token
// twice yields the same identity.
func (c *Codec) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !tok.Valid {
		return "", ErrTokenInvalid
	}
	if claims.Username == "" {
		return "", fmt.Errorf("%w: missing username claim", ErrTokenInvalid)
	}
	return claims.Username, nil
}
