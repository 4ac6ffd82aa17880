package filetree

import (
	"context"
	"errors"

	"filetree-server/internal/models"

	"go.uber.org/zap"
)

// NodeEdit is a partial update; nil fields are left untouched.
type NodeEdit struct {
	Name     *string
	Tags     *[]string
	Content  *string
	MimeType *string
}

func (e NodeEdit) touchesLockedFields() bool {
	return e.Name != nil || e.Tags != nil || e.Content != nil
}

func (e NodeEdit) empty() bool {
	return !e.touchesLockedFields() && e.MimeType == nil
}

func (s *Service) RenameNode(ctx context.Context, caller Caller, id, name, clientToken string) (*models.Node, error) {
	return s.UpdateNode(ctx, caller, id, clientToken, NodeEdit{Name: &name})
}

func (s *Service) RetagNode(ctx context.Context, caller Caller, id string, tags []string, clientToken string) (*models.Node, error) {
	return s.UpdateNode(ctx, caller, id, clientToken, NodeEdit{Tags: &tags})
}

func (s *Service) EditContent(ctx context.Context, caller Caller, id, content, clientToken string) (*models.Node, error) {
	return s.UpdateNode(ctx, caller, id, clientToken, NodeEdit{Content: &content})
}

func (s *Service) UpdateMetadata(ctx context.Context, caller Caller, id, mimeType string) (*models.Node, error) {
	return s.UpdateNode(ctx, caller, id, "", NodeEdit{MimeType: &mimeType})
}

// UpdateNode applies edit atomically. It requires edit capability, and a File locked by
// another session rejects name, tag and content changes with a LockedError.
func (s *Service) UpdateNode(ctx context.Context, caller Caller, id, clientToken string, edit NodeEdit) (updated *models.Node, err error) {
	defer func() { observe("update", err) }()

	if edit.empty() {
		return nil, invalid("no update specified")
	}

	var name string
	if edit.Name != nil {
		if name, err = validateName(*edit.Name); err != nil {
			return nil, err
		}
	}
	var tags []string
	if edit.Tags != nil {
		if tags, err = normalizeTags(*edit.Tags); err != nil {
			return nil, err
		}
	}
	if edit.Content != nil && len(*edit.Content) > s.limits.MaxInlineContentBytes {
		return nil, invalid("inline content exceeds %d bytes", s.limits.MaxInlineContentBytes)
	}

	var replacedBlob *string
	updated, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if n.IsRecycleBin() {
			return forbidden("the Recycle Bin cannot be modified")
		}
		if err := authorize(n, caller, CapEdit); err != nil {
			return err
		}
		if edit.touchesLockedFields() {
			if err := checkLock(n, caller, clientToken); err != nil {
				return err
			}
		}
		if !n.IsFile() && (edit.Tags != nil || edit.Content != nil || edit.MimeType != nil) {
			return invalid("only files carry tags, content and a mime type")
		}

		if edit.Name != nil {
			n.Name = name
		}
		if edit.Tags != nil {
			n.Tags = tags
		}
		if edit.Content != nil {
			replacedBlob = n.StorageKey
			content := *edit.Content
			n.Content = &content
			n.StorageKey = nil
			n.SizeBytes = int64(len(content))
		}
		if edit.MimeType != nil {
			mimeType := *edit.MimeType
			n.MimeType = &mimeType
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replacedBlob != nil {
		s.deleteBlob(ctx, *replacedBlob)
	}

	s.logger.Info("node updated", zap.String("node_id", id), zap.String("by", caller.Username))
	s.emit(ctx, updated.OwnerID, "node_updated", updated)
	return updated, nil
}

// MoveNode reparents a node within its owner's tree. A nil newParentID moves it to root.
func (s *Service) MoveNode(ctx context.Context, caller Caller, id string, newParentID *string) (moved *models.Node, err error) {
	defer func() { observe("move", err) }()

	node, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.IsRecycleBin() {
		return nil, forbidden("the Recycle Bin cannot be moved")
	}
	if err := authorize(node, caller, CapManage); err != nil {
		return nil, err
	}

	if newParentID != nil {
		target, err := s.store.Get(ctx, *newParentID)
		if err != nil {
			return nil, err
		}
		if target.IsRecycleBin() {
			return nil, forbidden("use delete to move nodes into the Recycle Bin")
		}
		if !target.IsFolder() {
			return nil, invalid("target %s is a file and cannot have children", target.ID)
		}
		if target.OwnerID != node.OwnerID {
			return nil, forbidden("nodes cannot be moved into another owner's tree")
		}
		cyclic, err := s.isDescendant(ctx, target.ID, node.ID)
		if err != nil {
			return nil, err
		}
		if cyclic {
			return nil, invalid("cannot move node %s under itself or its descendant %s", node.ID, target.ID)
		}
	}

	moved, err = s.store.Update(ctx, id, func(n *models.Node) error {
		n.ParentID = newParentID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, moved.OwnerID, "node_moved", moved)
	return moved, nil
}

// MoveToTrash soft-deletes a node into its owner's Recycle Bin. A node that already sits
// directly in a Recycle Bin is purged permanently instead, in which case purged is true.
func (s *Service) MoveToTrash(ctx context.Context, caller Caller, id string) (purged bool, err error) {
	defer func() { observe("trash", err) }()

	node, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if node.IsRecycleBin() {
		return false, forbidden("the Recycle Bin cannot be deleted")
	}
	if err := authorize(node, caller, CapEdit); err != nil {
		return false, err
	}

	inBin, err := s.inRecycleBin(ctx, node)
	if err != nil {
		return false, err
	}
	if inBin {
		if err := authorize(node, caller, CapManage); err != nil {
			return false, err
		}
		count, err := s.purge(ctx, node)
		if err != nil {
			return false, err
		}
		s.logger.Info("node purged from recycle bin", zap.String("node_id", id), zap.Int("removed", count))
		s.emit(ctx, node.OwnerID, "node_deleted", map[string]any{"id": id, "removed": count})
		return true, nil
	}

	bin, err := s.EnsureRecycleBin(ctx, node.OwnerID)
	if err != nil {
		return false, err
	}

	trashed, err := s.store.Update(ctx, id, func(n *models.Node) error {
		if err := authorize(n, caller, CapEdit); err != nil {
			return err
		}
		n.ParentID = &bin.ID
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("node moved to recycle bin", zap.String("node_id", id), zap.String("by", caller.Username))
	s.emit(ctx, trashed.OwnerID, "node_trashed", trashed)
	return false, nil
}

func (s *Service) inRecycleBin(ctx context.Context, node *models.Node) (bool, error) {
	if node.ParentID == nil {
		return false, nil
	}
	parent, err := s.store.Get(ctx, *node.ParentID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return parent.IsRecycleBin(), nil
}

// HardDelete permanently removes a node and all of its descendants.
func (s *Service) HardDelete(ctx context.Context, caller Caller, id string) (err error) {
	defer func() { observe("hard_delete", err) }()

	node, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if node.IsRecycleBin() {
		return forbidden("the Recycle Bin cannot be deleted")
	}
	if err := authorize(node, caller, CapManage); err != nil {
		return err
	}

	count, err := s.purge(ctx, node)
	if err != nil {
		return err
	}

	s.logger.Info("node hard deleted", zap.String("node_id", id), zap.Int("removed", count))
	s.emit(ctx, node.OwnerID, "node_deleted", map[string]any{"id": id, "removed": count})
	return nil
}

// Restore moves a node back to its owner's root. The pre-trash location is not tracked.
func (s *Service) Restore(ctx context.Context, caller Caller, id string) (restored *models.Node, err error) {
	defer func() { observe("restore", err) }()

	restored, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if n.IsRecycleBin() {
			return forbidden("the Recycle Bin cannot be restored")
		}
		if err := authorize(n, caller, CapManage); err != nil {
			return err
		}
		n.ParentID = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("node restored", zap.String("node_id", id))
	s.emit(ctx, restored.OwnerID, "node_restored", restored)
	return restored, nil
}

// ListTrash lists the top-level contents of the caller's Recycle Bin.
func (s *Service) ListTrash(ctx context.Context, caller Caller, opts ListOptions) ([]*models.Node, error) {
	if caller.IsAnonymous() {
		return nil, forbidden("anonymous callers have no Recycle Bin")
	}
	bin, err := s.store.FindRecycleBin(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return []*models.Node{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.ListChildren(ctx, caller, &bin.ID, opts)
}

// PurgeTrash permanently removes everything inside the caller's Recycle Bin and
// returns the number of records removed.
func (s *Service) PurgeTrash(ctx context.Context, caller Caller) (count int, err error) {
	defer func() { observe("purge_trash", err) }()

	if caller.IsAnonymous() {
		return 0, forbidden("anonymous callers have no Recycle Bin")
	}
	bin, err := s.store.FindRecycleBin(ctx, caller.UserID)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	children, err := s.store.ListChildren(ctx, ChildQuery{ParentID: &bin.ID, Sort: SortByName, Order: OrderAsc})
	if err != nil {
		return 0, err
	}
	count, err = s.purge(ctx, children...)
	if err != nil {
		return 0, err
	}

	s.logger.Info("recycle bin purged", zap.Int64("owner_id", caller.UserID), zap.Int("removed", count))
	s.emit(ctx, caller.UserID, "trash_purged", map[string]any{"removed": count})
	return count, nil
}
