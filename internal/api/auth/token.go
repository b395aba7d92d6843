package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/FACorreiaa/go-user-accounts/config"
	"github.com/FACorreiaa/go-user-accounts/internal/api"
)

// TokenService mints and validates signed, time-bounded access tokens.
// Tokens are stateless: validity is re-derived from the signature, the
// payload, and the clock on every call. The signing key is fixed for the
// process lifetime; there is no rotation or server-side revocation.
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
}

func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secretKey: []byte(cfg.SecretKey),
		ttl:       cfg.AccessTokenTTL,
		issuer:    cfg.Issuer,
	}
}

// Mint issues an HS256 token asserting subjectID until now+TTL.
func (s *TokenService) Mint(subjectID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, shape and expiry of tokenString against the
// given clock and returns the subject identifier. Every failure mode maps to
// api.ErrUnauthenticated so callers cannot distinguish why a token was bad.
func (s *TokenService) Validate(tokenString string, now time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", api.ErrUnauthenticated)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("token has no valid subject: %w", api.ErrUnauthenticated)
	}
	return claims.Subject, nil
}

// TTL exposes the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
