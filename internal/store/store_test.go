package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	models.Meta
}

func (w *widget) RecordID() string { return w.ID }

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNextIsMonotonic(t *testing.T) {
	s := openTest(t)
	prev := uint64(0)
	for i := 0; i < 250; i++ {
		n, err := s.Next("widgets")
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
	first, err := s.Next("gadgets")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	col := NewCollection[widget, *widget]("widgets", "widget")
	now := time.Now()

	var id string
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		id, err = col.NewID(tx, "widget")
		if err != nil {
			return err
		}
		return col.Insert(tx, &widget{ID: id, Name: "first"}, now)
	})
	require.NoError(t, err)
	assert.Equal(t, "widget_001", id)

	err = s.Update(ctx, func(tx *Tx) error {
		return col.Insert(tx, &widget{ID: id}, now)
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	err = s.Update(ctx, func(tx *Tx) error {
		_, err := col.Update(tx, id, 1, now, func(w *widget) error {
			w.Name = "renamed"
			return nil
		})
		return err
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx *Tx) error {
		w, err := col.Get(tx, id)
		require.NoError(t, err)
		assert.Equal(t, "renamed", w.Name)
		assert.Equal(t, int64(2), w.Version)
		assert.NotNil(t, w.UpdatedAt)

		all, err := col.List(tx, Live[*widget])
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateKeepsTypedErrors(t *testing.T) {
	s := openTest(t)
	err := s.Update(context.Background(), func(tx *Tx) error {
		return apperr.Validation("name is required")
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = s.Update(context.Background(), func(tx *Tx) error {
		return errors.New("disk on fire")
	})
	assert.True(t, apperr.Is(err, apperr.KindInternal))
}

func TestCommitHooks(t *testing.T) {
	s := openTest(t)
	calls := 0
	s.OnCommit(func() { calls++ })

	require.NoError(t, s.Update(context.Background(), func(tx *Tx) error {
		return tx.PutJSON("k", 1)
	}))
	_ = s.Update(context.Background(), func(tx *Tx) error {
		return apperr.Validation("nope")
	})
	assert.Equal(t, 1, calls)
}

func TestCancelledContext(t *testing.T) {
	s := openTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Update(ctx, func(tx *Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
