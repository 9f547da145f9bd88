package repositories

import (
	"context"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

type ProjectRepository struct {
	store *store.Store
	col   *store.Collection[models.Project, *models.Project]
	now   timeutil.Clock
}

func NewProjectRepository(s *store.Store, clock timeutil.Clock) *ProjectRepository {
	return &ProjectRepository{
		store: s,
		col:   store.NewCollection[models.Project, *models.Project]("projects", "project"),
		now:   clock,
	}
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return r.CreateTx(tx, p)
	})
}

func (r *ProjectRepository) CreateTx(tx *store.Tx, p *models.Project) error {
	if p.Status == "" {
		p.Status = models.ProjectPending
	}
	if p.AssignedEmployees == nil {
		p.AssignedEmployees = []string{}
	}
	id, err := r.col.NewID(tx, "project")
	if err != nil {
		return err
	}
	p.ID = id
	return r.col.Insert(tx, p, r.now())
}

func (r *ProjectRepository) Get(ctx context.Context, id string) (*models.Project, error) {
	var p *models.Project
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		p, err = r.col.Get(tx, id)
		return err
	})
	return p, err
}

// Update applies fn to the stored project inside one transaction. When a
// concurrent writer commits first, fn is re-applied to the fresh record, so
// two updates touching different fields both survive.
func (r *ProjectRepository) Update(ctx context.Context, id string, expectedVersion int64, fn func(*models.Project) error) (*models.Project, error) {
	var out *models.Project
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.UpdateTx(tx, id, expectedVersion, fn)
		return err
	})
	return out, err
}

func (r *ProjectRepository) UpdateTx(tx *store.Tx, id string, expectedVersion int64, fn func(*models.Project) error) (*models.Project, error) {
	return r.col.Update(tx, id, expectedVersion, r.now(), fn)
}

// Delete marks the project deleted.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(p *models.Project) error {
			p.Status = models.ProjectDeleted
			p.Tombstone(now)
			return nil
		})
		return err
	})
}

// List returns projects that are not deleted, optionally of one type.
func (r *ProjectRepository) List(ctx context.Context, projectType string) ([]*models.Project, error) {
	var out []*models.Project
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.ListTx(tx, projectType)
		return err
	})
	return out, err
}

func (r *ProjectRepository) ListTx(tx *store.Tx, projectType string) ([]*models.Project, error) {
	return r.col.List(tx, func(p *models.Project) bool {
		if p.IsDeleted() || p.Status == models.ProjectDeleted {
			return false
		}
		return projectType == "" || p.Type == projectType
	})
}

func (r *ProjectRepository) ListByClient(ctx context.Context, clientID string) ([]*models.Project, error) {
	var out []*models.Project
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, func(p *models.Project) bool {
			return !p.IsDeleted() && p.ClientID == clientID
		})
		return err
	})
	return out, err
}

// ListByEmployee returns the live projects userID is assigned to.
func (r *ProjectRepository) ListByEmployee(ctx context.Context, userID string) ([]*models.Project, error) {
	var out []*models.Project
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, func(p *models.Project) bool {
			return !p.IsDeleted() && p.IsAssigned(userID)
		})
		return err
	})
	return out, err
}

func (r *ProjectRepository) ListAll(ctx context.Context) ([]*models.Project, error) {
	var out []*models.Project
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, nil)
		return err
	})
	return out, err
}
