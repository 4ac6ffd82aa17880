package filetree

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"filetree-server/internal/models"

	"github.com/microcosm-cc/bluemonday"
)

var previewableExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".js":   true,
	".html": true,
	".css":  true,
}

const maxPreviewBytes = 1 << 20

var htmlPolicy = bluemonday.UGCPolicy()

// OpenContent returns the node and a reader over its bytes. The caller closes the reader.
func (s *Service) OpenContent(ctx context.Context, caller Caller, id string) (*models.Node, io.ReadCloser, error) {
	node, err := s.GetNode(ctx, caller, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.open(ctx, node)
	if err != nil {
		return nil, nil, err
	}
	return node, rc, nil
}

// OpenPublic resolves a public link and returns the File's bytes.
func (s *Service) OpenPublic(ctx context.Context, token string) (*models.Node, io.ReadCloser, error) {
	node, err := s.ResolvePublic(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.open(ctx, node)
	if err != nil {
		return nil, nil, err
	}
	return node, rc, nil
}

func (s *Service) open(ctx context.Context, node *models.Node) (io.ReadCloser, error) {
	if !node.IsFile() {
		return nil, invalid("node %s is a folder", node.ID)
	}
	switch {
	case node.Content != nil:
		return io.NopCloser(strings.NewReader(*node.Content)), nil
	case node.StorageKey != nil:
		rc, err := s.blobs.Open(ctx, *node.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("failed to open blob for node %s: %w", node.ID, err)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("node %s has neither content nor a storage key", node.ID)
}

// Preview returns the text of text-like files. HTML is sanitized.
func (s *Service) Preview(ctx context.Context, caller Caller, id string) (string, error) {
	node, err := s.GetNode(ctx, caller, id)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(node.Name))
	if !node.IsFile() || !previewableExtensions[ext] {
		return "", fmt.Errorf("%w: preview not available for %q files", ErrUnsupported, ext)
	}

	rc, err := s.open(ctx, node)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPreviewBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read node %s: %w", node.ID, err)
	}
	if ext == ".html" {
		return htmlPolicy.Sanitize(string(data)), nil
	}
	return string(data), nil
}
