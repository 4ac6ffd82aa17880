package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filetree-server/internal/filetree"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalStorage keeps blobs on disk, sharded by the first two characters of the key.
type LocalStorage struct {
	basePath string
	logger   *zap.Logger
}

var _ filetree.BlobStore = (*LocalStorage)(nil)

func NewLocalStorage(basePath string, logger *zap.Logger) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStorage{basePath: basePath, logger: logger}, nil
}

func (ls *LocalStorage) getPathFromKey(key string) (string, error) {
	if _, err := uuid.Parse(key); err != nil {
		return "", fmt.Errorf("%w: malformed storage key %q", filetree.ErrNotFound, key)
	}
	return filepath.Join(ls.basePath, key[:2], key), nil
}

// Put writes r to a temporary file first so a failed copy never leaves a partial blob.
func (ls *LocalStorage) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	key := uuid.NewString()
	filePath, err := ls.getPathFromKey(key)
	if err != nil {
		return "", 0, err
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, readerWithContext(ctx, r))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return "", 0, err
	}

	ls.logger.Debug("blob stored", zap.String("key", key), zap.Int64("size", size))
	return key, size, nil
}

func (ls *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	filePath, err := ls.getPathFromKey(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: blob %s", filetree.ErrNotFound, key)
		}
		return nil, err
	}
	return file, nil
}

// Delete is idempotent; a missing blob is not an error.
func (ls *LocalStorage) Delete(_ context.Context, key string) error {
	filePath, err := ls.getPathFromKey(key)
	if err != nil {
		return nil
	}

	err = os.Remove(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
