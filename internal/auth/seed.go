package auth

import (
	"context"
	"errors"
	"fmt"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// Seed is an account provisioned from configuration.
type Seed struct {
	Username     string
	PasswordHash string
}

type UserCreator interface {
	LookupUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
}

// SeedUsers creates every seeded account that does not exist yet and returns how many were
// created. Existing accounts keep their stored password.
func SeedUsers(ctx context.Context, users UserCreator, seeds []Seed) (int, error) {
	created := 0
	for _, seed := range seeds {
		if _, err := bcrypt.Cost([]byte(seed.PasswordHash)); err != nil {
			return created, fmt.Errorf("user %q: password hash is not a bcrypt hash: %w", seed.Username, err)
		}

		_, err := users.LookupUsername(ctx, seed.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, filetree.ErrNotFound) {
			return created, fmt.Errorf("failed to look up user %q: %w", seed.Username, err)
		}

		if _, err := users.CreateUser(ctx, seed.Username, seed.PasswordHash); err != nil {
			if errors.Is(err, filetree.ErrConflict) {
				continue
			}
			return created, fmt.Errorf("failed to create user %q: %w", seed.Username, err)
		}
		created++
	}
	return created, nil
}
