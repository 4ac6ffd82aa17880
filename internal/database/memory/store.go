// Package memory holds in-process implementations of the node store, the user
// directory and the event journal. State is lost on restart.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"filetree-server/internal/clock"
	"filetree-server/internal/filetree"
	"filetree-server/internal/models"
)

// Store is a NodeStore guarded by a single RWMutex. Every read hands out a clone.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*models.Node
	clock clock.Clock
}

var _ filetree.NodeStore = (*Store)(nil)

func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.System()
	}
	return &Store{
		nodes: make(map[string]*models.Node),
		clock: c,
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: node %s", filetree.ErrNotFound, id)
}

func (s *Store) Create(_ context.Context, node *models.Node) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return "", fmt.Errorf("%w: node id %s already exists", filetree.ErrConflict, node.ID)
	}
	if node.IsRecycleBin() {
		if _, err := s.findRecycleBinLocked(node.OwnerID); err == nil {
			return "", fmt.Errorf("%w: owner %d already has a Recycle Bin", filetree.ErrConflict, node.OwnerID)
		}
	}
	if node.ParentID != nil {
		if _, ok := s.nodes[*node.ParentID]; !ok {
			return "", notFound(*node.ParentID)
		}
	}

	s.nodes[node.ID] = node.Clone()
	return node.ID, nil
}

func (s *Store) Get(_ context.Context, id string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	return n.Clone(), nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok, nil
}

func (s *Store) collect(match func(n *models.Node) bool) []*models.Node {
	out := []*models.Node{}
	for _, n := range s.nodes {
		if match(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

func (s *Store) ListChildren(_ context.Context, q filetree.ChildQuery) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	children := s.collect(func(n *models.Node) bool {
		if q.ParentID == nil {
			return n.ParentID == nil && n.OwnerID == q.OwnerID
		}
		return n.ParentID != nil && *n.ParentID == *q.ParentID
	})
	filetree.SortNodes(children, q.Sort, q.Order)
	return children, nil
}

func (s *Store) FindByPublicLink(_ context.Context, token string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.nodes {
		if n.PublicLinkID != nil && *n.PublicLinkID == token {
			return n.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: public link", filetree.ErrNotFound)
}

func (s *Store) findRecycleBinLocked(ownerID int64) (*models.Node, error) {
	for _, n := range s.nodes {
		if n.OwnerID == ownerID && n.IsRecycleBin() {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: recycle bin of owner %d", filetree.ErrNotFound, ownerID)
}

func (s *Store) FindRecycleBin(_ context.Context, ownerID int64) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bin, err := s.findRecycleBinLocked(ownerID)
	if err != nil {
		return nil, err
	}
	return bin.Clone(), nil
}

func (s *Store) Update(_ context.Context, id string, fn func(node *models.Node) error) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.nodes[id]
	if !ok {
		return nil, notFound(id)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.OwnerID = current.OwnerID
	next.Kind = current.Kind
	next.CreatedAt = current.CreatedAt

	if next.ParentID != nil {
		if _, ok := s.nodes[*next.ParentID]; !ok {
			return nil, notFound(*next.ParentID)
		}
	}
	if current.ContentDiffers(next) {
		next.ModifiedAt = s.clock.Now()
	}

	s.nodes[id] = next
	return next.Clone(), nil
}

func (s *Store) Delete(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.nodes[id]; !ok {
			return notFound(id)
		}
		doomed[id] = true
	}
	for id, n := range s.nodes {
		if !doomed[id] && n.ParentID != nil && doomed[*n.ParentID] {
			return fmt.Errorf("%w: node %s still has child %s", filetree.ErrConflict, *n.ParentID, id)
		}
	}
	for _, id := range ids {
		delete(s.nodes, id)
	}
	return nil
}

func (s *Store) Search(_ context.Context, q filetree.SearchQuery) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text := strings.ToLower(q.Text)
	matches := s.collect(func(n *models.Node) bool {
		_, granted := n.Permissions[q.Username]
		if n.OwnerID != q.OwnerID && !(q.Username != "" && granted) && !n.IsPublic {
			return false
		}
		if strings.Contains(strings.ToLower(n.Name), text) {
			return true
		}
		for _, tag := range n.Tags {
			if strings.Contains(tag, text) {
				return true
			}
		}
		return false
	})
	filetree.SortNodes(matches, filetree.SortByName, filetree.OrderAsc)
	return matches, nil
}

func (s *Store) ListGrantedTo(_ context.Context, username string) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := s.collect(func(n *models.Node) bool {
		_, ok := n.Permissions[username]
		return ok
	})
	filetree.SortNodes(nodes, filetree.SortByName, filetree.OrderAsc)
	return nodes, nil
}

func (s *Store) ListPublic(_ context.Context) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := s.collect(func(n *models.Node) bool { return n.IsPublic })
	filetree.SortNodes(nodes, filetree.SortByName, filetree.OrderAsc)
	return nodes, nil
}
