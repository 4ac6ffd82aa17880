// Package filetree implements the multi-tenant file tree: authorization of every
// operation against the current node state, tree invariants, locking, sharing,
// publication and the per-owner Recycle Bin.
package filetree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"filetree-server/internal/clock"
	"filetree-server/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
)

const (
	DefaultMaxInlineContentBytes = 10 * 1024
	DefaultMaxUploadBytes        = 1 << 30

	idLength     = 21
	idMaxRetries = 10

	// maxTreeDepth bounds every parent-chain walk.
	maxTreeDepth = 4096
)

type Limits struct {
	MaxInlineContentBytes int
	MaxUploadBytes        int64
}

type Service struct {
	store  NodeStore
	users  UserDirectory
	blobs  BlobStore
	events EventSink
	clock  clock.Clock
	logger *zap.Logger
	limits Limits
	newID  func() string
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

func WithLimits(l Limits) Option {
	return func(s *Service) {
		if l.MaxInlineContentBytes > 0 {
			s.limits.MaxInlineContentBytes = l.MaxInlineContentBytes
		}
		if l.MaxUploadBytes > 0 {
			s.limits.MaxUploadBytes = l.MaxUploadBytes
		}
	}
}

func NewService(store NodeStore, users UserDirectory, blobs BlobStore, opts ...Option) (*Service, error) {
	generateID, err := nanoid.Standard(idLength)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}

	s := &Service{
		store:  store,
		users:  users,
		blobs:  blobs,
		events: nopSink{},
		clock:  clock.System(),
		logger: zap.NewNop(),
		limits: Limits{
			MaxInlineContentBytes: DefaultMaxInlineContentBytes,
			MaxUploadBytes:        DefaultMaxUploadBytes,
		},
		newID: generateID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) generateUniqueID(ctx context.Context) (string, error) {
	for i := 0; i < idMaxRetries; i++ {
		id := s.newID()
		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check for node existence: %w", err)
		}
		if !exists {
			return id, nil
		}
	}

	return "", fmt.Errorf("failed to generate a unique ID after %d attempts", idMaxRetries)
}

func (s *Service) emit(ctx context.Context, userID int64, eventType string, payload any) {
	if err := s.events.Publish(ctx, userID, eventType, payload); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}

// GetNode returns the node if the caller holds at least view on it.
func (s *Service) GetNode(ctx context.Context, caller Caller, id string) (*models.Node, error) {
	node, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(node, caller, CapView); err != nil {
		return nil, err
	}
	return node, nil
}

type ListOptions struct {
	Sort   SortKey
	Order  SortOrder
	Limit  int
	Offset int
}

func (o ListOptions) normalize() (ListOptions, error) {
	switch o.Sort {
	case "":
		o.Sort = SortByName
	case SortByName, SortByCreatedAt, SortByModifiedAt, SortBySize:
	default:
		return o, invalid("unknown sort key %q", o.Sort)
	}
	switch o.Order {
	case "":
		o.Order = OrderAsc
	case OrderAsc, OrderDesc:
	default:
		return o, invalid("unknown sort order %q", o.Order)
	}
	if o.Limit < 0 || o.Offset < 0 {
		return o, invalid("limit and offset must not be negative")
	}
	return o, nil
}

func paginate(nodes []*models.Node, limit, offset int) []*models.Node {
	if offset >= len(nodes) {
		return []*models.Node{}
	}
	nodes = nodes[offset:]
	if limit > 0 && limit < len(nodes) {
		nodes = nodes[:limit]
	}
	return nodes
}

// ListChildren lists the direct children of parentID the caller can view. A nil parentID
// lists the caller's own root.
func (s *Service) ListChildren(ctx context.Context, caller Caller, parentID *string, opts ListOptions) ([]*models.Node, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	q := ChildQuery{ParentID: parentID, Sort: opts.Sort, Order: opts.Order}
	if parentID == nil {
		if caller.IsAnonymous() {
			return nil, forbidden("anonymous callers have no root")
		}
		q.OwnerID = caller.UserID
	} else {
		parent, err := s.GetNode(ctx, caller, *parentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, invalid("node %s is not a folder", parent.ID)
		}
	}

	children, err := s.store.ListChildren(ctx, q)
	if err != nil {
		return nil, err
	}
	return paginate(filterVisible(children, caller), opts.Limit, opts.Offset), nil
}

type CreateParams struct {
	ParentID *string
	Kind     models.NodeKind
	Name     string
	Content  *string
	MimeType *string
	Tags     []string
}

// resolveParent checks that a new child may be placed under parentID by caller.
func (s *Service) resolveParent(ctx context.Context, caller Caller, parentID *string) error {
	if parentID == nil {
		return nil
	}
	parent, err := s.store.Get(ctx, *parentID)
	if err != nil {
		return err
	}
	if parent.IsRecycleBin() {
		return forbidden("cannot create nodes inside the Recycle Bin")
	}
	if !parent.IsFolder() {
		return invalid("parent %s is a file and cannot have children", parent.ID)
	}
	if parent.OwnerID != caller.UserID {
		return forbidden("nodes can only be created inside the caller's own tree")
	}
	return nil
}

func (s *Service) CreateNode(ctx context.Context, caller Caller, p CreateParams) (node *models.Node, err error) {
	defer func() { observe("create", err) }()

	if caller.IsAnonymous() {
		return nil, forbidden("anonymous callers cannot create nodes")
	}
	name, err := validateName(p.Name)
	if err != nil {
		return nil, err
	}

	node = &models.Node{
		OwnerID:     caller.UserID,
		ParentID:    p.ParentID,
		Name:        name,
		Kind:        p.Kind,
		Permissions: map[string]models.AccessLevel{},
		Tags:        []string{},
	}

	switch p.Kind {
	case models.KindFolder:
		if p.Content != nil {
			return nil, invalid("folders cannot have content")
		}
		if len(p.Tags) > 0 {
			return nil, invalid("folders cannot be tagged")
		}
	case models.KindFile:
		content := ""
		if p.Content != nil {
			content = *p.Content
		}
		if len(content) > s.limits.MaxInlineContentBytes {
			return nil, invalid("inline content exceeds %d bytes", s.limits.MaxInlineContentBytes)
		}
		tags, err := normalizeTags(p.Tags)
		if err != nil {
			return nil, err
		}
		node.Content = &content
		node.SizeBytes = int64(len(content))
		node.Tags = tags
		node.MimeType = p.MimeType
		if node.MimeType == nil {
			detected := mimetype.Detect([]byte(content)).String()
			node.MimeType = &detected
		}
	default:
		return nil, invalid("unknown node kind %q", p.Kind)
	}

	if err := s.resolveParent(ctx, caller, p.ParentID); err != nil {
		return nil, err
	}

	if err := s.insert(ctx, node); err != nil {
		return nil, err
	}

	s.logger.Info("node created",
		zap.String("node_id", node.ID),
		zap.String("kind", string(node.Kind)),
		zap.Int64("owner_id", node.OwnerID),
	)
	s.emit(ctx, node.OwnerID, "node_created", node)
	return node, nil
}

func (s *Service) insert(ctx context.Context, node *models.Node) error {
	id, err := s.generateUniqueID(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	node.ID = id
	node.CreatedAt = now
	node.ModifiedAt = now

	if _, err := s.store.Create(ctx, node); err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

type UploadParams struct {
	ParentID *string
	Name     string
	MimeType *string
	Body     io.Reader
}

// sniffLen is how much of an upload is buffered for content type detection.
const sniffLen = 3072

// UploadFile stores the bytes in the blob store and creates a File node referencing them.
func (s *Service) UploadFile(ctx context.Context, caller Caller, p UploadParams) (node *models.Node, err error) {
	defer func() { observe("upload", err) }()

	if caller.IsAnonymous() {
		return nil, forbidden("anonymous callers cannot upload")
	}
	name, err := validateName(p.Name)
	if err != nil {
		return nil, err
	}
	if p.Body == nil {
		return nil, invalid("upload body is required")
	}
	if err := s.resolveParent(ctx, caller, p.ParentID); err != nil {
		return nil, err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(p.Body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	mimeType := p.MimeType
	if mimeType == nil || *mimeType == "" || *mimeType == "application/octet-stream" {
		detected := mimetype.Detect(head).String()
		mimeType = &detected
	}

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), p.Body), s.limits.MaxUploadBytes+1)
	key, size, err := s.blobs.Put(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if size > s.limits.MaxUploadBytes {
		s.deleteBlob(ctx, key)
		return nil, invalid("upload exceeds %d bytes", s.limits.MaxUploadBytes)
	}

	node = &models.Node{
		OwnerID:     caller.UserID,
		ParentID:    p.ParentID,
		Name:        name,
		Kind:        models.KindFile,
		StorageKey:  &key,
		SizeBytes:   size,
		MimeType:    mimeType,
		Tags:        []string{},
		Permissions: map[string]models.AccessLevel{},
	}
	if err := s.insert(ctx, node); err != nil {
		s.deleteBlob(ctx, key)
		return nil, err
	}

	s.logger.Info("file uploaded",
		zap.String("node_id", node.ID),
		zap.Int64("owner_id", node.OwnerID),
		zap.Int64("size_bytes", size),
	)
	s.emit(ctx, node.OwnerID, "node_created", node)
	return node, nil
}

func (s *Service) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete blob", zap.String("storage_key", key), zap.Error(err))
	}
}

// isDescendant reports whether candidate lies in the subtree rooted at ancestorID
// (candidate == ancestorID counts).
func (s *Service) isDescendant(ctx context.Context, candidateID, ancestorID string) (bool, error) {
	current := &candidateID
	for depth := 0; current != nil; depth++ {
		if depth > maxTreeDepth {
			return false, invalid("parent chain of %s exceeds %d levels", candidateID, maxTreeDepth)
		}
		if *current == ancestorID {
			return true, nil
		}
		n, err := s.store.Get(ctx, *current)
		if err != nil {
			return false, err
		}
		current = n.ParentID
	}
	return false, nil
}

// subtree returns the ids under root in post-order (descendants before their parent),
// together with the blob keys they reference.
func (s *Service) subtree(ctx context.Context, root *models.Node) ([]string, []string, error) {
	var ids, keys []string
	var walk func(n *models.Node, depth int) error
	walk = func(n *models.Node, depth int) error {
		if depth > maxTreeDepth {
			return invalid("subtree of %s exceeds %d levels", root.ID, maxTreeDepth)
		}
		if n.IsFolder() {
			children, err := s.store.ListChildren(ctx, ChildQuery{ParentID: &n.ID, Sort: SortByName, Order: OrderAsc})
			if err != nil {
				return err
			}
			for _, child := range children {
				if err := walk(child, depth+1); err != nil {
					return err
				}
			}
		}
		ids = append(ids, n.ID)
		if n.StorageKey != nil {
			keys = append(keys, *n.StorageKey)
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, nil, err
	}
	return ids, keys, nil
}

// purgeAttempts bounds how often purge re-walks a subtree that gained a child mid-purge.
const purgeAttempts = 3

// purge permanently removes the subtrees rooted at roots and their blobs. The store rejects a
// delete that would orphan a child created during the walk, in which case the walk is redone.
func (s *Service) purge(ctx context.Context, roots ...*models.Node) (int, error) {
	var err error
	for attempt := 0; attempt < purgeAttempts; attempt++ {
		var ids, keys []string
		for _, root := range roots {
			rootIDs, rootKeys, walkErr := s.subtree(ctx, root)
			if walkErr != nil {
				return 0, walkErr
			}
			ids = append(ids, rootIDs...)
			keys = append(keys, rootKeys...)
		}
		if len(ids) == 0 {
			return 0, nil
		}

		err = s.store.Delete(ctx, ids...)
		if errors.Is(err, ErrConflict) {
			s.logger.Debug("subtree changed during purge, retrying", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to delete nodes: %w", err)
		}
		for _, key := range keys {
			s.deleteBlob(ctx, key)
		}
		return len(ids), nil
	}
	return 0, fmt.Errorf("failed to delete nodes: %w", err)
}
