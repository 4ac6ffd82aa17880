package filetree

import (
	"context"
	"io"

	"filetree-server/internal/models"
)

type SortKey string

const (
	SortByName       SortKey = "name"
	SortByCreatedAt  SortKey = "created_at"
	SortByModifiedAt SortKey = "modified_at"
	SortBySize       SortKey = "size"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ChildQuery selects the direct children of ParentID. A nil ParentID selects the
// root-level nodes of OwnerID. Folders always sort before files.
type ChildQuery struct {
	ParentID *string
	OwnerID  int64
	Sort     SortKey
	Order    SortOrder
}

// SearchQuery matches Text case-insensitively against names and tags of nodes that are
// owned by OwnerID, granted to Username, or public.
type SearchQuery struct {
	Text     string
	OwnerID  int64
	Username string
}

// NodeStore persists the tree. Missing ids yield ErrNotFound and unique violations
// (duplicate id, second Recycle Bin for an owner) yield ErrConflict.
type NodeStore interface {
	Create(ctx context.Context, node *models.Node) (string, error)
	Get(ctx context.Context, id string) (*models.Node, error)
	Exists(ctx context.Context, id string) (bool, error)
	ListChildren(ctx context.Context, q ChildQuery) ([]*models.Node, error)
	FindByPublicLink(ctx context.Context, token string) (*models.Node, error)
	FindRecycleBin(ctx context.Context, ownerID int64) (*models.Node, error)

	// Update runs fn against the current state of a single node and persists the result
	// atomically. If fn returns an error nothing is written. modifiedAt is stamped when
	// content, name or tags change.
	Update(ctx context.Context, id string, fn func(node *models.Node) error) (*models.Node, error)

	// Delete removes the given records permanently, all or nothing. It fails with
	// ErrConflict when a record outside ids still has one of ids as its parent.
	Delete(ctx context.Context, ids ...string) error

	Search(ctx context.Context, q SearchQuery) ([]*models.Node, error)
	ListGrantedTo(ctx context.Context, username string) ([]*models.Node, error)
	ListPublic(ctx context.Context) ([]*models.Node, error)
}

// UserDirectory is the identity collaborator used to resolve grant targets.
// LookupUsername returns ErrNotFound for unknown users.
type UserDirectory interface {
	LookupUsername(ctx context.Context, username string) (*models.User, error)
}

// BlobStore holds uploaded bytes. The core only keeps the returned storage key.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (key string, size int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// EventSink receives change notifications after a mutation has been applied.
type EventSink interface {
	Publish(ctx context.Context, userID int64, eventType string, payload any) error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, int64, string, any) error { return nil }
