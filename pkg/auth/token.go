package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer credential is present
	ErrMissingToken = errors.New("missing bearer token")
	// ErrMalformedToken is returned when the Authorization header is not a bearer credential
	ErrMalformedToken = errors.New("malformed authorization header")
	// ErrInvalidToken is returned when a credential fails verification
	ErrInvalidToken = errors.New("invalid token")
)

// TokenVerifier verifies a raw bearer token and returns the user id it identifies
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// ParseBearer extracts the token from an Authorization header value
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMalformedToken
	}
	return token, nil
}

// Claims are the claims carried by HMAC signed tokens
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// HMACVerifier verifies and issues HS256 tokens signed with a shared secret
type HMACVerifier struct {
	secret []byte
	issuer string
}

// NewHMACVerifier creates a verifier for tokens signed with secret
func NewHMACVerifier(secret []byte, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: secret, issuer: issuer}
}

// Issue signs a token for userID valid for ttl
func (v *HMACVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and issuer and returns the subject
func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Username != "" {
		return claims.Username, nil
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
