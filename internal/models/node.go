package models

import (
	"slices"
	"time"
)

type NodeKind string

const (
	KindFile   NodeKind = "file"
	KindFolder NodeKind = "folder"
)

type AccessLevel string

const (
	AccessView AccessLevel = "view"
	AccessEdit AccessLevel = "edit"
)

// RecycleBinName is reserved: a root-level folder with this name is the owner's Recycle Bin.
const RecycleBinName = "Recycle Bin"

type Lock struct {
	LockedBy    string    `json:"locked_by"`
	ClientToken string    `json:"-"`
	AcquiredAt  time.Time `json:"acquired_at"`
}

type Node struct {
	ID           string                 `json:"id"`
	OwnerID      int64                  `json:"owner_id"`
	ParentID     *string                `json:"parent_id"`
	Name         string                 `json:"name"`
	Kind         NodeKind               `json:"node_type"`
	Content      *string                `json:"-"`
	StorageKey   *string                `json:"-"`
	SizeBytes    int64                  `json:"size_bytes"`
	MimeType     *string                `json:"mime_type"`
	Tags         []string               `json:"tags"`
	Permissions  map[string]AccessLevel `json:"permissions"`
	IsPublic     bool                   `json:"is_public"`
	PublicLinkID *string                `json:"public_link_id,omitempty"`
	Lock         *Lock                  `json:"lock,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	ModifiedAt   time.Time              `json:"modified_at"`
}

func (n *Node) IsFile() bool   { return n.Kind == KindFile }
func (n *Node) IsFolder() bool { return n.Kind == KindFolder }

func (n *Node) IsRecycleBin() bool {
	return n.Kind == KindFolder && n.ParentID == nil && n.Name == RecycleBinName
}

// Clone returns a deep copy; stores hand out clones so callers never alias stored state.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.ParentID = cloneString(n.ParentID)
	c.Content = cloneString(n.Content)
	c.StorageKey = cloneString(n.StorageKey)
	c.MimeType = cloneString(n.MimeType)
	c.PublicLinkID = cloneString(n.PublicLinkID)
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.Permissions != nil {
		c.Permissions = make(map[string]AccessLevel, len(n.Permissions))
		for k, v := range n.Permissions {
			c.Permissions[k] = v
		}
	}
	if n.Lock != nil {
		l := *n.Lock
		c.Lock = &l
	}
	return &c
}

// ContentDiffers reports whether name, tags or content differ between n and other.
// Only those fields move modifiedAt.
func (n *Node) ContentDiffers(other *Node) bool {
	if n.Name != other.Name || !slices.Equal(n.Tags, other.Tags) {
		return true
	}
	if !equalString(n.Content, other.Content) {
		return true
	}
	return !equalString(n.StorageKey, other.StorageKey)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
