package filetree

import (
	"context"

	"filetree-server/internal/models"

	"go.uber.org/zap"
)

// LockHeldByOther reports whether n is locked by a session other than (username, clientToken).
// Two tabs of the same user are different sessions.
func LockHeldByOther(n *models.Node, username, clientToken string) bool {
	if n.Lock == nil {
		return false
	}
	return n.Lock.LockedBy != username || n.Lock.ClientToken != clientToken
}

func checkLock(n *models.Node, caller Caller, clientToken string) error {
	if n.IsFile() && LockHeldByOther(n, caller.Username, clientToken) {
		lockConflictsTotal.Inc()
		return &LockedError{NodeID: n.ID, Holder: n.Lock.LockedBy}
	}
	return nil
}

// AcquireLock takes the single-holder lock on a File for the (caller, clientToken)
// session. Re-acquiring from the same session is a no-op; any other session gets a
// LockedError immediately.
func (s *Service) AcquireLock(ctx context.Context, caller Caller, id, clientToken string) (node *models.Node, err error) {
	defer func() { observe("lock", err) }()

	if clientToken == "" {
		return nil, invalid("client token is required")
	}
	if caller.IsAnonymous() {
		return nil, forbidden("anonymous callers cannot lock nodes")
	}

	acquired := false
	node, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if n.IsRecycleBin() {
			return forbidden("the Recycle Bin cannot be locked")
		}
		if err := authorize(n, caller, CapEdit); err != nil {
			return err
		}
		if !n.IsFile() {
			return invalid("only files can be locked")
		}
		if n.Lock != nil {
			if LockHeldByOther(n, caller.Username, clientToken) {
				lockConflictsTotal.Inc()
				return &LockedError{NodeID: n.ID, Holder: n.Lock.LockedBy}
			}
			return nil
		}
		n.Lock = &models.Lock{
			LockedBy:    caller.Username,
			ClientToken: clientToken,
			AcquiredAt:  s.clock.Now(),
		}
		acquired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if acquired {
		s.logger.Debug("lock acquired", zap.String("node_id", id), zap.String("by", caller.Username))
		s.emit(ctx, node.OwnerID, "node_locked", map[string]any{"id": id, "locked_by": caller.Username})
	}
	return node, nil
}

// ReleaseLock drops the lock if it is held by exactly (caller, clientToken). Releasing an
// unlocked node succeeds without change.
func (s *Service) ReleaseLock(ctx context.Context, caller Caller, id, clientToken string) (node *models.Node, err error) {
	defer func() { observe("unlock", err) }()

	released := false
	node, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if err := authorize(n, caller, CapView); err != nil {
			return err
		}
		if n.Lock == nil {
			return nil
		}
		if LockHeldByOther(n, caller.Username, clientToken) {
			return forbidden("you don't own this lock")
		}
		n.Lock = nil
		released = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if released {
		s.logger.Debug("lock released", zap.String("node_id", id), zap.String("by", caller.Username))
		s.emit(ctx, node.OwnerID, "node_unlocked", map[string]any{"id": id})
	}
	return node, nil
}
