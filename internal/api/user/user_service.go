package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
)

var _ UserService = (*UserServiceImpl)(nil)

// UserService defines the business logic contract for profile operations.
// All results are PublicUser projections; the password verifier never
// crosses this boundary.
type UserService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*api.PublicUser, error)
	ListUsers(ctx context.Context) ([]api.PublicUser, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, params api.UpdateUserParams) (*api.PublicUser, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) (*api.PublicUser, error)
}

// UserServiceImpl provides the implementation for UserService with a
// short-TTL read cache of projections, invalidated on every mutation so an
// update is reflected on the next read.
type UserServiceImpl struct {
	logger *slog.Logger
	repo   UserRepo
	cache  *cache.Cache
}

// NewUserService creates a new user service instance.
func NewUserService(repo UserRepo, logger *slog.Logger) *UserServiceImpl {
	return &UserServiceImpl{
		logger: logger,
		repo:   repo,
		cache:  cache.New(30*time.Second, time.Minute),
	}
}

// GetUser retrieves a user's public projection by ID.
func (s *UserServiceImpl) GetUser(ctx context.Context, userID uuid.UUID) (*api.PublicUser, error) {
	key := userID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*api.PublicUser), nil
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", err)
	}

	pub := u.Public()
	s.cache.SetDefault(key, pub)
	return pub, nil
}

// ListUsers returns public projections of all users in insertion order.
func (s *UserServiceImpl) ListUsers(ctx context.Context) ([]api.PublicUser, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}

	public := make([]api.PublicUser, 0, len(users))
	for i := range users {
		public = append(public, *users[i].Public())
	}
	return public, nil
}

// UpdateUser patches the mutable profile fields and returns the new state.
func (s *UserServiceImpl) UpdateUser(ctx context.Context, userID uuid.UUID, params api.UpdateUserParams) (*api.PublicUser, error) {
	l := s.logger.With(slog.String("method", "UpdateUser"), slog.String("userID", userID.String()))

	u, err := s.repo.Update(ctx, userID, params)
	if err != nil {
		l.ErrorContext(ctx, "Failed to update user", slog.Any("error", err))
		return nil, fmt.Errorf("error updating user: %w", err)
	}

	s.cache.Delete(userID.String())
	l.InfoContext(ctx, "User updated")
	return u.Public(), nil
}

// DeleteUser removes the account and returns its last public state.
func (s *UserServiceImpl) DeleteUser(ctx context.Context, userID uuid.UUID) (*api.PublicUser, error) {
	l := s.logger.With(slog.String("method", "DeleteUser"), slog.String("userID", userID.String()))

	u, err := s.repo.Delete(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		return nil, fmt.Errorf("error deleting user: %w", err)
	}

	s.cache.Delete(userID.String())
	l.InfoContext(ctx, "User deleted")
	return u.Public(), nil
}
