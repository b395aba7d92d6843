package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-user-accounts/app/observability/metrics"
	"github.com/FACorreiaa/go-user-accounts/internal/api"
	"github.com/FACorreiaa/go-user-accounts/internal/api/user"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthService is the integration point between credentials, the user store
// and token issuance. Credential failures are deliberately uniform: a caller
// cannot tell a missing user from a wrong password, nor an expired token
// from a tampered one.
type AuthService interface {
	// Register hashes the password and creates the account.
	Register(ctx context.Context, username, email, fullName, password string) (*api.PublicUser, error)

	// Login verifies the credentials and mints an access token.
	Login(ctx context.Context, username, password string) (string, error)

	// CurrentUser resolves a presented token back to an identity.
	CurrentUser(ctx context.Context, tokenString string) (*api.PublicUser, error)
}

// AuthServiceImpl implements the AuthService interface.
type AuthServiceImpl struct {
	logger *slog.Logger
	users  user.UserRepo
	hasher PasswordHasher
	tokens *TokenService
}

// NewAuthService creates a new AuthService.
func NewAuthService(users user.UserRepo, hasher PasswordHasher, tokens *TokenService, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger: logger,
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register hashes the plaintext and stores the new account. A username or
// email collision surfaces as api.ErrConflict; the error does not say which
// field collided.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, fullName, password string) (*api.PublicUser, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Register", trace.WithAttributes(
		attribute.String("user.username", username),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "Register"), slog.String("username", username))
	start := time.Now()

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		l.ErrorContext(ctx, "Failed to hash password", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	created, err := s.users.Create(ctx, user.CreateUserParams{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			l.WarnContext(ctx, "Registration conflict")
			span.SetStatus(codes.Error, "duplicate username or email")
			return nil, err
		}
		l.ErrorContext(ctx, "Failed to create user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	m := metrics.Get()
	m.RegisterRequestsTotal.Add(ctx, 1)
	m.RegisterDurationSeconds.Record(ctx, time.Since(start).Seconds())

	l.InfoContext(ctx, "User registered", slog.String("userID", created.ID.String()))
	span.SetStatus(codes.Ok, "registered")
	return created.Public(), nil
}

// Login authenticates a username/password pair and returns a signed access
// token. Unknown usernames and bad passwords fail identically with
// api.ErrUnauthenticated.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()

	l := s.logger.With(slog.String("method", "Login"), slog.String("username", username))
	start := time.Now()

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			l.WarnContext(ctx, "Login attempt for unknown username")
			span.SetStatus(codes.Error, "credentials rejected")
			return "", fmt.Errorf("login failed: %w", api.ErrUnauthenticated)
		}
		l.ErrorContext(ctx, "Failed to look up user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return "", fmt.Errorf("error fetching user: %w", err)
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		l.WarnContext(ctx, "Login attempt with wrong password")
		span.SetStatus(codes.Error, "credentials rejected")
		return "", fmt.Errorf("login failed: %w", api.ErrUnauthenticated)
	}

	token, err := s.tokens.Mint(u.ID.String(), time.Now())
	if err != nil {
		l.ErrorContext(ctx, "Failed to mint access token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "token minting failed")
		return "", fmt.Errorf("error minting token: %w", err)
	}

	m := metrics.Get()
	m.LoginRequestsTotal.Add(ctx, 1)
	m.LoginDurationSeconds.Record(ctx, time.Since(start).Seconds())

	l.InfoContext(ctx, "Login successful", slog.String("userID", u.ID.String()))
	span.SetStatus(codes.Ok, "logged in")
	return token, nil
}

// CurrentUser validates the token and resolves the subject to a live user.
// Expired, malformed and tampered tokens, as well as tokens whose subject no
// longer exists, all fail with api.ErrUnauthenticated.
func (s *AuthServiceImpl) CurrentUser(ctx context.Context, tokenString string) (*api.PublicUser, error) {
	l := s.logger.With(slog.String("method", "CurrentUser"))

	subject, err := s.tokens.Validate(tokenString, time.Now())
	if err != nil {
		l.WarnContext(ctx, "Token validation failed")
		return nil, err
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		l.WarnContext(ctx, "Token subject is not a valid user ID")
		return nil, fmt.Errorf("malformed token subject: %w", api.ErrUnauthenticated)
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			l.WarnContext(ctx, "Token subject no longer exists", slog.String("subject", subject))
			return nil, fmt.Errorf("unknown token subject: %w", api.ErrUnauthenticated)
		}
		l.ErrorContext(ctx, "Failed to resolve token subject", slog.Any("error", err))
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	return u.Public(), nil
}
