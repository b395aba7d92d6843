package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("requested item not found")
var ErrConflict = errors.New("item already exists or conflict")
var ErrUnauthenticated = errors.New("authentication required or invalid credentials")

// User is the full account record as stored. The password hash never leaves
// the repository/service layer; clients only ever see PublicUser.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser is the client-facing projection of a user record.
type PublicUser struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

// Public returns the client projection of the record.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
	}
}

// RegisterRequest represents the expected JSON body for user registration.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// TokenResponse is the successful login payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UpdateUserParams carries the mutable profile fields. Only non-nil fields
// are applied; username and email are immutable after registration.
type UpdateUserParams struct {
	FullName *string `json:"full_name,omitempty"`
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError aggregates field-level failures for a request body.
// The boundary surfaces it as HTTP 422 with a detail list.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Fields[0].Msg
}

// MissingField reports a required body field that was absent.
func MissingField(name string) FieldError {
	return FieldError{
		Loc:  []string{"body", name},
		Msg:  "field required",
		Type: "value_error.missing",
	}
}

// Typed context key for the authenticated identity.
type contextKey string

const userContextKey contextKey = "currentUser"

// ContextWithUser stores the authenticated identity on the request context.
func ContextWithUser(ctx context.Context, u *PublicUser) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext retrieves the identity set by the authentication middleware.
func UserFromContext(ctx context.Context) (*PublicUser, bool) {
	u, ok := ctx.Value(userContextKey).(*PublicUser)
	return u, ok
}
