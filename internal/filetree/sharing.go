package filetree

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"filetree-server/internal/models"

	"go.uber.org/zap"
)

// GrantPermission gives targetUsername level on the node. Owner only.
func (s *Service) GrantPermission(ctx context.Context, caller Caller, id, targetUsername string, level models.AccessLevel) (node *models.Node, err error) {
	defer func() { observe("grant", err) }()

	if err := validateLevel(level); err != nil {
		return nil, err
	}
	targetUsername = strings.TrimSpace(targetUsername)
	if targetUsername == "" {
		return nil, invalid("target username is required")
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsRecycleBin() {
		return nil, forbidden("the Recycle Bin cannot be shared")
	}
	if err := authorize(current, caller, CapManage); err != nil {
		return nil, err
	}

	target, err := s.users.LookupUsername(ctx, targetUsername)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("user %q", targetUsername)
		}
		return nil, fmt.Errorf("failed to resolve user %q: %w", targetUsername, err)
	}
	if target.ID == current.OwnerID {
		return nil, invalid("cannot share a node with its owner")
	}

	node, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if n.Permissions == nil {
			n.Permissions = map[string]models.AccessLevel{}
		}
		n.Permissions[target.Username] = level
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("permission granted",
		zap.String("node_id", id),
		zap.String("to", target.Username),
		zap.String("level", string(level)),
	)
	s.emit(ctx, target.ID, "node_shared_with_you", map[string]any{"node": node, "level": level})
	return node, nil
}

// RevokePermission removes targetUsername's grant. Owner only.
func (s *Service) RevokePermission(ctx context.Context, caller Caller, id, targetUsername string) (node *models.Node, err error) {
	defer func() { observe("revoke", err) }()

	node, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if n.IsRecycleBin() {
			return forbidden("the Recycle Bin cannot be shared")
		}
		if err := authorize(n, caller, CapManage); err != nil {
			return err
		}
		if _, ok := n.Permissions[targetUsername]; !ok {
			return notFound("user %q has no grant on node %s", targetUsername, n.ID)
		}
		delete(n.Permissions, targetUsername)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"id": id, "username": targetUsername}
	s.emit(ctx, node.OwnerID, "node_unshared", payload)
	if target, err := s.users.LookupUsername(ctx, targetUsername); err == nil {
		s.emit(ctx, target.ID, "node_unshared", payload)
	}
	return node, nil
}

// RevokeOwnPermission lets a grantee drop their own grant.
func (s *Service) RevokeOwnPermission(ctx context.Context, caller Caller, id string) (err error) {
	defer func() { observe("revoke_self", err) }()

	if caller.IsAnonymous() {
		return forbidden("anonymous callers hold no grants")
	}
	node, err := s.store.Update(ctx, id, func(n *models.Node) error {
		if _, ok := n.Permissions[caller.Username]; !ok {
			return notFound("node %s is not shared with %s", n.ID, caller.Username)
		}
		delete(n.Permissions, caller.Username)
		return nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, node.OwnerID, "node_unshared", map[string]any{"id": id, "username": caller.Username})
	return nil
}

func newPublicLinkID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate public link id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SetPublic publishes or unpublishes a node. Publishing keeps an existing link id;
// unpublishing invalidates it for good.
func (s *Service) SetPublic(ctx context.Context, caller Caller, id string, public bool) (node *models.Node, err error) {
	defer func() { observe("publish", err) }()

	token, err := newPublicLinkID()
	if err != nil {
		return nil, err
	}

	node, err = s.store.Update(ctx, id, func(n *models.Node) error {
		if n.IsRecycleBin() {
			return forbidden("the Recycle Bin cannot be published")
		}
		if err := authorize(n, caller, CapManage); err != nil {
			return err
		}
		if !public {
			n.IsPublic = false
			n.PublicLinkID = nil
			return nil
		}
		n.IsPublic = true
		if n.PublicLinkID == nil {
			n.PublicLinkID = &token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := "node_unpublished"
	if public {
		eventType = "node_published"
	}
	s.emit(ctx, node.OwnerID, eventType, node)
	return node, nil
}

// ResolvePublic returns the File published under token. Non-public and non-file matches
// are reported as not found.
func (s *Service) ResolvePublic(ctx context.Context, token string) (*models.Node, error) {
	if token == "" {
		return nil, notFound("public link")
	}
	node, err := s.store.FindByPublicLink(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("public link")
		}
		return nil, err
	}
	if !node.IsPublic || !node.IsFile() {
		return nil, notFound("public link")
	}
	return node, nil
}

// ListPublic lists every published File.
func (s *Service) ListPublic(ctx context.Context) ([]*models.Node, error) {
	nodes, err := s.store.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	return filterVisible(nodes, Anonymous()), nil
}

// ListShared lists nodes owned by others that carry a grant for the caller.
func (s *Service) ListShared(ctx context.Context, caller Caller) ([]*models.Node, error) {
	if caller.IsAnonymous() {
		return nil, forbidden("anonymous callers hold no grants")
	}
	nodes, err := s.store.ListGrantedTo(ctx, caller.Username)
	if err != nil {
		return nil, err
	}
	shared := make([]*models.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.OwnerID != caller.UserID {
			shared = append(shared, n)
		}
	}
	return shared, nil
}

// Search matches text against names and tags of every node the caller can view.
func (s *Service) Search(ctx context.Context, caller Caller, text string) ([]*models.Node, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("search text is required")
	}
	nodes, err := s.store.Search(ctx, SearchQuery{Text: text, OwnerID: caller.UserID, Username: caller.Username})
	if err != nil {
		return nil, err
	}
	return filterVisible(nodes, caller), nil
}
