package filetree_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"filetree-server/internal/clock"
	"filetree-server/internal/database/memory"
	"filetree-server/internal/filetree"
	"filetree-server/internal/models"

	"github.com/stretchr/testify/require"
)

type memBlobs struct {
	mu    sync.Mutex
	next  int
	blobs map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: map[string][]byte{}}
}

func (m *memBlobs) Put(_ context.Context, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	key := fmt.Sprintf("blob-%d", m.next)
	m.blobs[key] = data
	return key, int64(len(data)), nil
}

func (m *memBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: blob %s", filetree.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

type fixture struct {
	svc     *filetree.Service
	store   *memory.Store
	users   *memory.Users
	journal *memory.Journal
	blobs   *memBlobs
	clock   *clock.Manual
}

func newFixture(t *testing.T, opts ...filetree.Option) *fixture {
	t.Helper()

	c := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		store:   memory.NewStore(c),
		users:   memory.NewUsers(),
		journal: memory.NewJournal(c, nil),
		blobs:   newMemBlobs(),
		clock:   c,
	}
	opts = append([]filetree.Option{filetree.WithClock(c), filetree.WithEventSink(f.journal)}, opts...)
	svc, err := filetree.NewService(f.store, f.users, f.blobs, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) user(t *testing.T, username string) filetree.Caller {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), username, "hash")
	require.NoError(t, err)
	return filetree.Caller{UserID: u.ID, Username: u.Username}
}

func (f *fixture) folder(t *testing.T, owner filetree.Caller, parentID *string, name string) *models.Node {
	t.Helper()
	n, err := f.svc.CreateNode(context.Background(), owner, filetree.CreateParams{
		ParentID: parentID,
		Kind:     models.KindFolder,
		Name:     name,
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) file(t *testing.T, owner filetree.Caller, parentID *string, name, content string) *models.Node {
	t.Helper()
	n, err := f.svc.CreateNode(context.Background(), owner, filetree.CreateParams{
		ParentID: parentID,
		Kind:     models.KindFile,
		Name:     name,
		Content:  &content,
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) eventTypes(t *testing.T, userID int64) []string {
	t.Helper()
	events, err := f.journal.GetEventsSince(context.Background(), userID, 0)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func names(nodes []*models.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}
