package database

import (
	"context"
	"fmt"

	"filetree-server/internal/clock"
	"filetree-server/internal/filetree"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher pushes encoded events to live subscribers of a user.
type Publisher interface {
	PublishEvent(userID int64, eventData []byte)
}

type Store struct {
	pool  *pgxpool.Pool
	hub   Publisher
	clock clock.Clock
	*Queries
}

var (
	_ filetree.NodeStore     = (*Store)(nil)
	_ filetree.UserDirectory = (*Store)(nil)
	_ filetree.EventSink     = (*Store)(nil)
)

func NewStore(pool *pgxpool.Pool, hub Publisher, c clock.Clock) *Store {
	if c == nil {
		c = clock.System()
	}
	return &Store{
		pool:    pool,
		hub:     hub,
		clock:   c,
		Queries: New(pool),
	}
}

func (s *Store) ExecTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}
