package backup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"erp-backend/internal/models"
	"erp-backend/internal/timeutil"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memoryObjects) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return nil
}

type staticSource struct{ doc *models.Document }

func (s staticSource) Export(context.Context) (*models.Document, error) { return s.doc, nil }

func TestSchedulerBacksUpOnlyWhenDirty(t *testing.T) {
	now := time.Date(2026, 3, 10, 2, 0, 0, 0, timeutil.Loc)
	objects := &memoryObjects{}
	doc := &models.Document{DailyOTP: "01234", DailyOTPDate: "2026-03-10"}
	s := NewScheduler(staticSource{doc}, objects, time.Hour, func() time.Time { return now })
	ctx := context.Background()

	require.True(t, s.Pending(), "first run always backs up")
	res, err := s.RunIfPending(ctx)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "documents/erp_20260310_020000.json", res.Key)

	var stored models.Document
	require.NoError(t, json.Unmarshal(objects.objects[res.Key], &stored))
	assert.Equal(t, "01234", stored.DailyOTP)

	res, err = s.RunIfPending(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Len(t, objects.objects, 1)

	s.MarkDirty()
	now = now.Add(time.Hour)
	res, err = s.RunIfPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, "documents/erp_20260310_030000.json", res.Key)
	assert.Equal(t, res, s.Last())
}

func TestSchedulerFailureKeepsChangesPending(t *testing.T) {
	objects := &memoryObjects{err: errors.New("bucket unreachable")}
	s := NewScheduler(staticSource{&models.Document{}}, objects, time.Hour, nil)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, s.Pending())
	assert.Empty(t, s.Last().Key)

	objects.err = nil
	_, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Pending())
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(staticSource{&models.Document{}}, &memoryObjects{}, time.Hour, nil)
	s.Start()
	s.Stop()
}
