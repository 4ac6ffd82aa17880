package database

import (
	"context"
	"errors"
	"fmt"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, password_hash, display_name, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.DisplayName,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername returns nil, nil when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) LookupUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %q", filetree.ErrNotFound, username)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("user %d", id))
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING ` + userColumns
	user, err := scanUser(s.pool.QueryRow(ctx, query, username, passwordHash))
	if err != nil {
		return nil, translate(err, fmt.Sprintf("username %q", username))
	}
	return user, nil
}
