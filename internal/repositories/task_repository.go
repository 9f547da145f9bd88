package repositories

import (
	"context"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

type TaskRepository struct {
	store *store.Store
	col   *store.Collection[models.Task, *models.Task]
	now   timeutil.Clock
}

func NewTaskRepository(s *store.Store, clock timeutil.Clock) *TaskRepository {
	return &TaskRepository{
		store: s,
		col:   store.NewCollection[models.Task, *models.Task]("tasks", "task"),
		now:   clock,
	}
}

func (r *TaskRepository) Create(ctx context.Context, t *models.Task) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		if t.Priority == "" {
			t.Priority = "medium"
		}
		if t.Status == "" {
			t.Status = models.TaskPending
		}
		id, err := r.col.NewID(tx, "task")
		if err != nil {
			return err
		}
		t.ID = id
		return r.col.Insert(tx, t, r.now())
	})
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*models.Task, error) {
	var t *models.Task
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		t, err = r.col.Get(tx, id)
		return err
	})
	return t, err
}

func (r *TaskRepository) Update(ctx context.Context, id string, expectedVersion int64, fn func(*models.Task) error) (*models.Task, error) {
	var out *models.Task
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.Update(tx, id, expectedVersion, r.now(), fn)
		return err
	})
	return out, err
}

// Delete tombstones the task. Its status is left as it was.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(t *models.Task) error {
			if t.IsDeleted() {
				return nil
			}
			t.Tombstone(now)
			return nil
		})
		return err
	})
}

// List returns live tasks matching every non-empty filter field.
func (r *TaskRepository) List(ctx context.Context, f models.TaskFilter) ([]*models.Task, error) {
	var out []*models.Task
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, func(t *models.Task) bool {
			if t.IsDeleted() {
				return false
			}
			if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
				return false
			}
			if f.ProjectID != "" && t.ProjectID != f.ProjectID {
				return false
			}
			return f.Status == "" || t.Status == f.Status
		})
		return err
	})
	return out, err
}

func (r *TaskRepository) ListAll(ctx context.Context) ([]*models.Task, error) {
	var out []*models.Task
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, nil)
		return err
	})
	return out, err
}
