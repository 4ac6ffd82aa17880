package memory

import (
	"context"
	"fmt"
	"sync"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"
)

// Users is an in-process user directory.
type Users struct {
	mu     sync.RWMutex
	nextID int64
	byName map[string]*models.User
	byID   map[int64]*models.User
}

func NewUsers() *Users {
	return &Users{
		byName: make(map[string]*models.User),
		byID:   make(map[int64]*models.User),
	}
}

func (u *Users) CreateUser(_ context.Context, username, passwordHash string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.byName[username]; exists {
		return nil, fmt.Errorf("%w: username %q is taken", filetree.ErrConflict, username)
	}
	u.nextID++
	user := &models.User{ID: u.nextID, Username: username, PasswordHash: passwordHash}
	u.byName[username] = user
	u.byID[user.ID] = user
	c := *user
	return &c, nil
}

func (u *Users) LookupUsername(_ context.Context, username string) (*models.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byName[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %q", filetree.ErrNotFound, username)
	}
	c := *user
	return &c, nil
}

func (u *Users) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	user, ok := u.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", filetree.ErrNotFound, id)
	}
	c := *user
	return &c, nil
}
