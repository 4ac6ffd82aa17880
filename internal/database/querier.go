package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const nodeColumns = `
	id, owner_id, parent_id, name, node_type, content, storage_key, size_bytes,
	mime_type, tags, permissions, is_public, public_link_id,
	locked_by, lock_client_token, lock_acquired_at, created_at, modified_at`

func scanNode(row pgx.Row) (*models.Node, error) {
	var (
		n           models.Node
		kind        string
		permissions []byte
		lockedBy    *string
		lockToken   *string
		lockedAt    *time.Time
	)
	err := row.Scan(
		&n.ID, &n.OwnerID, &n.ParentID, &n.Name, &kind, &n.Content, &n.StorageKey, &n.SizeBytes,
		&n.MimeType, &n.Tags, &permissions, &n.IsPublic, &n.PublicLinkID,
		&lockedBy, &lockToken, &lockedAt, &n.CreatedAt, &n.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Kind = models.NodeKind(kind)
	n.CreatedAt = n.CreatedAt.UTC()
	n.ModifiedAt = n.ModifiedAt.UTC()
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.Permissions = map[string]models.AccessLevel{}
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &n.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permissions of node %s: %w", n.ID, err)
		}
	}
	if lockedBy != nil && lockToken != nil {
		n.Lock = &models.Lock{LockedBy: *lockedBy, ClientToken: *lockToken}
		if lockedAt != nil {
			n.Lock.AcquiredAt = lockedAt.UTC()
		}
	}
	return &n, nil
}

func collectNodes(rows pgx.Rows) ([]*models.Node, error) {
	defer rows.Close()

	nodes := []*models.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func nodeArgs(n *models.Node) ([]any, error) {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	permissions := n.Permissions
	if permissions == nil {
		permissions = map[string]models.AccessLevel{}
	}
	permissionBytes, err := json.Marshal(permissions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode permissions: %w", err)
	}
	var lockedBy, lockToken *string
	var lockedAt *time.Time
	if n.Lock != nil {
		lockedBy, lockToken, lockedAt = &n.Lock.LockedBy, &n.Lock.ClientToken, &n.Lock.AcquiredAt
	}
	return []any{
		n.ID, n.OwnerID, n.ParentID, n.Name, string(n.Kind), n.Content, n.StorageKey, n.SizeBytes,
		n.MimeType, tags, permissionBytes, n.IsPublic, n.PublicLinkID,
		lockedBy, lockToken, lockedAt, n.CreatedAt, n.ModifiedAt,
	}, nil
}

func (q *Queries) InsertNode(ctx context.Context, n *models.Node) error {
	args, err := nodeArgs(n)
	if err != nil {
		return err
	}
	query := `INSERT INTO nodes (` + nodeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err = q.db.Exec(ctx, query, args...)
	return translate(err, "node "+n.ID)
}

func (q *Queries) GetNode(ctx context.Context, id string) (*models.Node, error) {
	row := q.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1`, id)
	n, err := scanNode(row)
	return n, translate(err, "node "+id)
}

// GetNodeForUpdate locks the row until the surrounding transaction ends.
func (q *Queries) GetNodeForUpdate(ctx context.Context, id string) (*models.Node, error) {
	row := q.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = $1 FOR UPDATE`, id)
	n, err := scanNode(row)
	return n, translate(err, "node "+id)
}

// SaveNode writes every mutable column. id, owner_id, node_type and created_at never change.
func (q *Queries) SaveNode(ctx context.Context, n *models.Node) error {
	args, err := nodeArgs(n)
	if err != nil {
		return err
	}
	query := `
		UPDATE nodes SET
			parent_id = $3, name = $4, content = $6, storage_key = $7, size_bytes = $8,
			mime_type = $9, tags = $10, permissions = $11, is_public = $12, public_link_id = $13,
			locked_by = $14, lock_client_token = $15, lock_acquired_at = $16, modified_at = $18
		WHERE id = $1 AND owner_id = $2 AND node_type = $5 AND created_at = $17
	`
	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return translate(err, "node "+n.ID)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: node %s", filetree.ErrNotFound, n.ID)
	}
	return nil
}

// DeleteNodes removes ids in one statement so foreign keys are checked once at its end.
func (q *Queries) DeleteNodes(ctx context.Context, ids []string) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM nodes WHERE id = ANY($1)`, ids)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return 0, fmt.Errorf("%w: a deleted node still has children", filetree.ErrConflict)
	}
	if err != nil {
		return 0, translate(err, "nodes")
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) NodeExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM nodes WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

var orderColumns = map[filetree.SortKey]string{
	filetree.SortByName:       "lower(name)",
	filetree.SortByCreatedAt:  "created_at",
	filetree.SortByModifiedAt: "modified_at",
	filetree.SortBySize:       "size_bytes",
}

func orderBy(key filetree.SortKey, order filetree.SortOrder) string {
	column, ok := orderColumns[key]
	if !ok {
		column = orderColumns[filetree.SortByName]
	}
	direction := "ASC"
	if order == filetree.OrderDesc {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY (node_type = 'folder') DESC, %s %s, id ASC", column, direction)
}

func (q *Queries) ListChildNodes(ctx context.Context, cq filetree.ChildQuery) ([]*models.Node, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if cq.ParentID == nil {
		rows, err = q.db.Query(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE parent_id IS NULL AND owner_id = $1`+orderBy(cq.Sort, cq.Order),
			cq.OwnerID)
	} else {
		rows, err = q.db.Query(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = $1`+orderBy(cq.Sort, cq.Order),
			*cq.ParentID)
	}
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

func (q *Queries) GetNodeByPublicLink(ctx context.Context, token string) (*models.Node, error) {
	row := q.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE public_link_id = $1`, token)
	n, err := scanNode(row)
	return n, translate(err, "public link")
}

func (q *Queries) GetRecycleBin(ctx context.Context, ownerID int64) (*models.Node, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE owner_id = $1 AND parent_id IS NULL AND node_type = 'folder' AND name = $2`,
		ownerID, models.RecycleBinName)
	n, err := scanNode(row)
	return n, translate(err, fmt.Sprintf("recycle bin of owner %d", ownerID))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (q *Queries) SearchNodes(ctx context.Context, sq filetree.SearchQuery) ([]*models.Node, error) {
	pattern := "%" + likeEscaper.Replace(sq.Text) + "%"
	query := `
		SELECT ` + nodeColumns + ` FROM nodes
		WHERE (owner_id = $2 OR ($3 <> '' AND permissions ? $3) OR is_public)
		  AND (name ILIKE $1 OR EXISTS (SELECT 1 FROM unnest(tags) AS t WHERE t ILIKE $1))
	` + orderBy(filetree.SortByName, filetree.OrderAsc)
	rows, err := q.db.Query(ctx, query, pattern, sq.OwnerID, sq.Username)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

func (q *Queries) ListNodesGrantedTo(ctx context.Context, username string) ([]*models.Node, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE permissions ? $1`+orderBy(filetree.SortByName, filetree.OrderAsc),
		username)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

func (q *Queries) ListPublicNodes(ctx context.Context) ([]*models.Node, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE is_public`+orderBy(filetree.SortByName, filetree.OrderAsc))
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}
