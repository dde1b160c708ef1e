package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shangji-io/shangji/internal/domain/user"
	"github.com/shangji-io/shangji/internal/repository"
)

// UserRepository implements user.UserRepository for SQLite.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts a user or updates the existing row with the same
// username, keeping its ID.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, role, superuser, active, token_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			full_name = excluded.full_name,
			role = excluded.role,
			superuser = excluded.superuser,
			active = excluded.active,
			token_hash = excluded.token_hash,
			updated_at = excluded.updated_at
	`,
		u.ID, u.Username, u.FullName, string(u.Role), u.Superuser, u.Active,
		u.TokenHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

const userColumns = `id, username, full_name, role, superuser, active, token_hash, created_at, updated_at`

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// GetByTokenHash retrieves a user by the hash of their bearer token.
func (r *UserRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*user.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE token_hash = ?`, tokenHash)
}

// FirstActiveByRole returns the longest-standing active user with the
// role. Used by the assignment policy.
func (r *UserRepository) FirstActiveByRole(ctx context.Context, role user.Role) (*user.User, error) {
	return r.getOne(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = ? AND active = 1
		ORDER BY created_at, username
		LIMIT 1
	`, string(role))
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*user.User, error) {
	var (
		u    user.User
		role string
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &u.FullName, &role, &u.Superuser, &u.Active,
		&u.TokenHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Role = user.Role(role)
	return &u, nil
}
