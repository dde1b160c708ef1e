package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shangji-io/shangji/internal/repository"
	"github.com/google/uuid"
)

// Service resolves and assigns users. It is the concrete face of the
// externally-owned account system: accounts are seeded at startup and
// never mutated through the API.
type Service struct {
	users  UserRepository
	logger *slog.Logger
}

// NewService creates a new user service.
func NewService(users UserRepository, logger *slog.Logger) *Service {
	return &Service{users: users, logger: logger}
}

// Seed describes a provisioned account.
type Seed struct {
	Username  string
	FullName  string
	Role      Role
	Superuser bool
	Token     string
}

// SeedUsers upserts the provisioned accounts. Existing accounts are matched
// by username and keep their ID.
func (s *Service) SeedUsers(ctx context.Context, seeds []Seed) error {
	for _, seed := range seeds {
		if strings.TrimSpace(seed.Username) == "" || strings.TrimSpace(seed.Token) == "" {
			return fmt.Errorf("%w: seed user requires username and token", ErrInvalidInput)
		}
		if !seed.Role.Valid() {
			return fmt.Errorf("%w: unknown role %q for user %q", ErrInvalidInput, seed.Role, seed.Username)
		}

		now := time.Now()
		u := &User{
			ID:        uuid.NewString(),
			Username:  seed.Username,
			FullName:  seed.FullName,
			Role:      seed.Role,
			Superuser: seed.Superuser,
			Active:    true,
			TokenHash: HashToken(seed.Token),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if existing, err := s.users.GetByUsername(ctx, seed.Username); err == nil {
			u.ID = existing.ID
			u.CreatedAt = existing.CreatedAt
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("looking up user %q: %w", seed.Username, err)
		}

		if err := s.users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("seeding user %q: %w", seed.Username, err)
		}
		s.logger.Debug("seeded user", "username", u.Username, "role", u.Role)
	}
	return nil
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.users.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("resolving token: %w", err)
	}
	if !u.Active {
		return nil, ErrInvalidToken
	}
	return u, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// PickAssignee returns the ID of the first active user holding the role, or
// "" when nobody does. Questions without an eligible assignee stay
// unassigned until an editor claims them.
func (s *Service) PickAssignee(ctx context.Context, role Role) (string, error) {
	u, err := s.users.FirstActiveByRole(ctx, role)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("picking assignee for role %s: %w", role, err)
	}
	return u.ID, nil
}

// HashToken returns the hex SHA-256 digest stored for a bearer token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
