// Package auth issues and verifies the signed session tokens handed out at
// login. Tokens are stateless: a token is valid while its HS256 signature
// matches the process secret and its expiry is in the future.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is used when Issue is called without an explicit lifetime.
const DefaultTTL = 10000 * time.Second

// SessionTTL is the default lifetime of tokens issued by the login flow.
// SESSION_TTL overrides it.
const SessionTTL = 3600 * time.Minute

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrInvalidToken     = errors.New("invalid token")
	ErrSigning          = errors.New("failed to sign token")
)

type UserClaims struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Role            string `json:"role,omitempty"`
	PaginationLimit int    `json:"pagination_limit,omitempty"`
}

type Claims struct {
	User UserClaims `json:"user"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, defaultTTL time.Duration) *Issuer {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Issuer{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// WithClock replaces the time source, used by tests to step past expiry.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) Issue(user UserClaims, ttl time.Duration) (string, error) {
	const op = "auth.Issue"

	if ttl <= 0 {
		ttl = i.defaultTTL
	}
	if user.ID == "" {
		return "", fmt.Errorf("%s: %w: empty user id", op, ErrSigning)
	}

	now := i.now()
	claims := &Claims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, ErrSigning, err)
	}
	return signed, nil
}

func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	const op = "auth.Verify"

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
		default:
			return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidToken, err)
		}
	}
	if !token.Valid || claims.User.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}
