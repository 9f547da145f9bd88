package services

import (
	"context"
	"sync"
	"testing"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySnapshots struct {
	mu    sync.Mutex
	snaps []*repositories.Snapshot
}

func (m *memorySnapshots) Save(_ context.Context, payload []byte, checksum, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &repositories.Snapshot{ID: int64(len(m.snaps) + 1), Payload: payload, Checksum: checksum, Source: source}
	m.snaps = append(m.snaps, snap)
	return snap.ID, nil
}

func (m *memorySnapshots) Latest(context.Context) (*repositories.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return nil, apperr.NotFound("no snapshots")
	}
	return m.snaps[len(m.snaps)-1], nil
}

func (m *memorySnapshots) Prune(_ context.Context, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) <= keep {
		return 0, nil
	}
	n := len(m.snaps) - keep
	m.snaps = m.snaps[n:]
	return int64(n), nil
}

func (m *memorySnapshots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func TestSyncPushSkipsUnchangedDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	remote := &memorySnapshots{}
	svc := NewSyncService(env.repos.Documents, remote, "test", 0)

	env.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	require.NoError(t, svc.Push(ctx))
	require.NoError(t, svc.Push(ctx))
	assert.Equal(t, 1, remote.count())

	env.createClient(t, "Acme", models.BusinessInstallation)
	require.NoError(t, svc.Push(ctx))
	assert.Equal(t, 2, remote.count())
}

func TestSyncRestoreLoadsLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	remote := &memorySnapshots{}

	source := newTestEnv(t)
	emp := source.createUser(t, "Erin", "erin@erp.local", models.RoleEmployee)
	client := source.createClient(t, "Acme", models.BusinessInstallation)
	require.NoError(t, NewSyncService(source.repos.Documents, remote, "a", 0).Push(ctx))

	target := newTestEnv(t)
	target.createUser(t, "Stale", "stale@erp.local", models.RoleManager)
	restored, err := NewSyncService(target.repos.Documents, remote, "b", 0).Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restored)

	got, err := target.repos.Users.Get(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "erin@erp.local", got.Email)
	_, err = target.repos.Users.Get(ctx, "manager_001")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = target.repos.Clients.Get(ctx, client.ID)
	assert.NoError(t, err)
}

func TestSyncRestoreWithoutSnapshots(t *testing.T) {
	env := newTestEnv(t)
	restored, err := NewSyncService(env.repos.Documents, &memorySnapshots{}, "test", 0).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
}
