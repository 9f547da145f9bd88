package repositories

import (
	"context"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

type LeadRepository struct {
	store *store.Store
	col   *store.Collection[models.Lead, *models.Lead]
	now   timeutil.Clock
}

func NewLeadRepository(s *store.Store, clock timeutil.Clock) *LeadRepository {
	return &LeadRepository{
		store: s,
		col:   store.NewCollection[models.Lead, *models.Lead]("leads", "lead"),
		now:   clock,
	}
}

func (r *LeadRepository) Create(ctx context.Context, l *models.Lead) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		if l.Status == "" {
			l.Status = models.LeadNew
		}
		if l.Priority == "" {
			l.Priority = "medium"
		}
		id, err := r.col.NewID(tx, "lead")
		if err != nil {
			return err
		}
		l.ID = id
		return r.col.Insert(tx, l, r.now())
	})
}

func (r *LeadRepository) Get(ctx context.Context, id string) (*models.Lead, error) {
	var l *models.Lead
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		l, err = r.col.Get(tx, id)
		return err
	})
	return l, err
}

func (r *LeadRepository) GetTx(tx *store.Tx, id string) (*models.Lead, error) {
	return r.col.Get(tx, id)
}

func (r *LeadRepository) Update(ctx context.Context, id string, expectedVersion int64, fn func(*models.Lead) error) (*models.Lead, error) {
	var out *models.Lead
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.UpdateTx(tx, id, expectedVersion, fn)
		return err
	})
	return out, err
}

func (r *LeadRepository) UpdateTx(tx *store.Tx, id string, expectedVersion int64, fn func(*models.Lead) error) (*models.Lead, error) {
	return r.col.Update(tx, id, expectedVersion, r.now(), fn)
}

// Delete marks the lead deleted.
func (r *LeadRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(l *models.Lead) error {
			l.Status = models.LeadDeleted
			l.Tombstone(now)
			return nil
		})
		return err
	})
}

// List returns leads that are not deleted, optionally of one business type.
func (r *LeadRepository) List(ctx context.Context, businessType string) ([]*models.Lead, error) {
	var out []*models.Lead
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.ListTx(tx, businessType)
		return err
	})
	return out, err
}

func (r *LeadRepository) ListTx(tx *store.Tx, businessType string) ([]*models.Lead, error) {
	return r.col.List(tx, func(l *models.Lead) bool {
		if l.IsDeleted() || l.Status == models.LeadDeleted {
			return false
		}
		return businessType == "" || l.BusinessType == businessType
	})
}

func (r *LeadRepository) ListAll(ctx context.Context) ([]*models.Lead, error) {
	var out []*models.Lead
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, nil)
		return err
	})
	return out, err
}
