package database

import (
	"context"
	"fmt"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"
)

func (s *Store) Create(ctx context.Context, node *models.Node) (string, error) {
	if err := s.InsertNode(ctx, node); err != nil {
		return "", err
	}
	return node.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Node, error) {
	return s.GetNode(ctx, id)
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	return s.NodeExists(ctx, id)
}

func (s *Store) ListChildren(ctx context.Context, q filetree.ChildQuery) ([]*models.Node, error) {
	return s.ListChildNodes(ctx, q)
}

func (s *Store) FindByPublicLink(ctx context.Context, token string) (*models.Node, error) {
	return s.GetNodeByPublicLink(ctx, token)
}

func (s *Store) FindRecycleBin(ctx context.Context, ownerID int64) (*models.Node, error) {
	return s.GetRecycleBin(ctx, ownerID)
}

// Update reads the row with SELECT ... FOR UPDATE, so concurrent updates of one node
// are serialized by Postgres.
func (s *Store) Update(ctx context.Context, id string, fn func(node *models.Node) error) (*models.Node, error) {
	var updated *models.Node
	err := s.ExecTx(ctx, func(q *Queries) error {
		current, err := q.GetNodeForUpdate(ctx, id)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.OwnerID = current.OwnerID
		next.Kind = current.Kind
		next.CreatedAt = current.CreatedAt
		if current.ContentDiffers(next) {
			next.ModifiedAt = s.clock.Now()
		}

		if err := q.SaveNode(ctx, next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.ExecTx(ctx, func(q *Queries) error {
		removed, err := q.DeleteNodes(ctx, ids)
		if err != nil {
			return err
		}
		if removed != int64(len(ids)) {
			return fmt.Errorf("%w: %d of %d nodes no longer exist", filetree.ErrNotFound, int64(len(ids))-removed, len(ids))
		}
		return nil
	})
}

func (s *Store) Search(ctx context.Context, q filetree.SearchQuery) ([]*models.Node, error) {
	return s.SearchNodes(ctx, q)
}

func (s *Store) ListGrantedTo(ctx context.Context, username string) ([]*models.Node, error) {
	return s.ListNodesGrantedTo(ctx, username)
}

func (s *Store) ListPublic(ctx context.Context) ([]*models.Node, error) {
	return s.ListPublicNodes(ctx)
}
