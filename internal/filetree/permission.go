package filetree

import (
	"filetree-server/internal/models"
)

// Caller is an already authenticated identity. The zero value is the anonymous caller.
type Caller struct {
	UserID   int64
	Username string
}

func Anonymous() Caller { return Caller{} }

func (c Caller) IsAnonymous() bool { return c.UserID == 0 }

// Capability levels are strictly ordered: view < edit < manage.
type Capability int

const (
	CapNone Capability = iota
	CapView
	CapEdit
	CapManage
)

func (c Capability) String() string {
	switch c {
	case CapView:
		return "view"
	case CapEdit:
		return "edit"
	case CapManage:
		return "manage"
	default:
		return "none"
	}
}

// CapabilityOf decides what caller may do with n. Grants are flat: a parent folder's
// grants never apply to its children.
func CapabilityOf(n *models.Node, c Caller) Capability {
	if n == nil {
		return CapNone
	}
	if !c.IsAnonymous() && c.UserID == n.OwnerID {
		return CapManage
	}
	if !c.IsAnonymous() && c.Username != "" {
		switch n.Permissions[c.Username] {
		case models.AccessEdit:
			return CapEdit
		case models.AccessView:
			return CapView
		}
	}
	if n.IsPublic && n.IsFile() {
		return CapView
	}
	return CapNone
}

func Allows(n *models.Node, c Caller, required Capability) bool {
	return CapabilityOf(n, c) >= required
}

func authorize(n *models.Node, c Caller, required Capability) error {
	if Allows(n, c, required) {
		return nil
	}
	return forbidden("%s access to node %s denied", required, n.ID)
}

func filterVisible(nodes []*models.Node, c Caller) []*models.Node {
	visible := make([]*models.Node, 0, len(nodes))
	for _, n := range nodes {
		if Allows(n, c, CapView) {
			visible = append(visible, n)
		}
	}
	return visible
}
