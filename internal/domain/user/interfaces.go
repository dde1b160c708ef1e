package user

import "context"

// UserRepository provides persistence for users.
type UserRepository interface {
	Upsert(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*User, error)
	FirstActiveByRole(ctx context.Context, role Role) (*User, error)
}
