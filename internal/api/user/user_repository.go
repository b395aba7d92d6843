package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// CreateUserParams carries the fields for a new account record. PasswordHash
// must already be the hashed verifier; this layer never sees plaintext.
type CreateUserParams struct {
	Username     string
	Email        string
	FullName     string
	PasswordHash string
}

// UserRepo defines the contract for user record persistence. The store owns
// record lifetime and enforces username/email uniqueness atomically: two
// racing Create calls with a colliding field cannot both succeed.
type UserRepo interface {
	// Create inserts a new record, returning api.ErrConflict when the
	// username or email is already taken (without saying which).
	Create(ctx context.Context, params CreateUserParams) (*api.User, error)

	// GetByUsername returns api.ErrNotFound when no record matches.
	GetByUsername(ctx context.Context, username string) (*api.User, error)

	// GetByID returns api.ErrNotFound when no record matches.
	GetByID(ctx context.Context, id uuid.UUID) (*api.User, error)

	// List returns all records in insertion order.
	List(ctx context.Context) ([]api.User, error)

	// Update applies only the non-nil fields of params. Patched fields are
	// not re-checked for uniqueness; the patch surface is full name only.
	Update(ctx context.Context, id uuid.UUID, params api.UpdateUserParams) (*api.User, error)

	// Delete removes the record and returns its last state.
	Delete(ctx context.Context, id uuid.UUID) (*api.User, error)
}

// DB is the subset of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresUserRepo struct {
	logger *slog.Logger
	db     DB
}

func NewPostgresUserRepo(db DB, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		db:     db,
	}
}

const userColumns = "id, username, email, full_name, password_hash, created_at, updated_at"

func scanUser(row pgx.Row) (*api.User, error) {
	var u api.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, params CreateUserParams) (*api.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Create", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Create"), slog.String("username", params.Username))

	// Single INSERT so the uniqueness check and the write are one atomic
	// unit; the UNIQUE constraints resolve concurrent races.
	query := `
		INSERT INTO users (id, username, email, full_name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRow(ctx, query,
		uuid.New(), params.Username, params.Email, params.FullName, params.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique violation
			l.WarnContext(ctx, "Username or email already registered")
			span.SetStatus(codes.Error, "unique violation")
			return nil, fmt.Errorf("duplicate username or email: %w", api.ErrConflict)
		}
		l.ErrorContext(ctx, "Failed to insert user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB INSERT failed")
		return nil, fmt.Errorf("database error creating user: %w", err)
	}

	span.SetStatus(codes.Ok, "user created")
	return u, nil
}

func (r *PostgresUserRepo) GetByUsername(ctx context.Context, username string) (*api.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, api.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching user by username: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*api.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, api.ErrNotFound)
		}
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) List(ctx context.Context) ([]api.User, error) {
	rows, err := r.db.Query(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("database error listing users: %w", err)
	}
	defer rows.Close()

	var users []api.User
	for rows.Next() {
		var u api.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FullName, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database error scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating users: %w", err)
	}
	return users, nil
}

func (r *PostgresUserRepo) Update(ctx context.Context, id uuid.UUID, params api.UpdateUserParams) (*api.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "Update", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", id.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Update"), slog.String("userID", id.String()))

	var setClauses []string
	var args []any
	argID := 1

	if params.FullName != nil {
		setClauses = append(setClauses, fmt.Sprintf("full_name = $%d", argID))
		args = append(args, *params.FullName)
		argID++
	}

	// No patched fields: return the current record unchanged.
	if len(setClauses) == 0 {
		l.DebugContext(ctx, "Update called with no fields to patch")
		span.SetStatus(codes.Ok, "no update fields provided")
		return r.GetByID(ctx, id)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now())
	argID++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d RETURNING %s",
		strings.Join(setClauses, ", "), argID, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			l.WarnContext(ctx, "User not found for update")
			span.SetStatus(codes.Error, "user not found")
			return nil, fmt.Errorf("user %s: %w", id, api.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to execute update query", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB UPDATE failed")
		return nil, fmt.Errorf("database error updating user: %w", err)
	}

	span.SetStatus(codes.Ok, "user updated")
	return u, nil
}

func (r *PostgresUserRepo) Delete(ctx context.Context, id uuid.UUID) (*api.User, error) {
	l := r.logger.With(slog.String("method", "Delete"), slog.String("userID", id.String()))

	u, err := scanUser(r.db.QueryRow(ctx,
		"DELETE FROM users WHERE id = $1 RETURNING "+userColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			l.WarnContext(ctx, "User not found for delete")
			return nil, fmt.Errorf("user %s: %w", id, api.ErrNotFound)
		}
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		return nil, fmt.Errorf("database error deleting user: %w", err)
	}
	return u, nil
}
