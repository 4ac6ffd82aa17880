package filetree

import (
	"sort"
	"strings"

	"filetree-server/internal/models"
)

// SortNodes orders nodes folders first, then by key, with id as the final tie-breaker.
func SortNodes(nodes []*models.Node, key SortKey, order SortOrder) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.Kind != b.Kind {
			return a.IsFolder()
		}
		c := compareBy(a, b, key)
		if c == 0 {
			return a.ID < b.ID
		}
		if order == OrderDesc {
			return c > 0
		}
		return c < 0
	})
}

func compareBy(a, b *models.Node, key SortKey) int {
	switch key {
	case SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortByModifiedAt:
		return a.ModifiedAt.Compare(b.ModifiedAt)
	case SortBySize:
		switch {
		case a.SizeBytes < b.SizeBytes:
			return -1
		case a.SizeBytes > b.SizeBytes:
			return 1
		}
		return 0
	default:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
}
