package repositories

import (
	"context"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

type ClientRepository struct {
	store *store.Store
	col   *store.Collection[models.Client, *models.Client]
	now   timeutil.Clock
}

func NewClientRepository(s *store.Store, clock timeutil.Clock) *ClientRepository {
	return &ClientRepository{
		store: s,
		col:   store.NewCollection[models.Client, *models.Client]("clients", "client"),
		now:   clock,
	}
}

func (r *ClientRepository) Create(ctx context.Context, c *models.Client) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return r.CreateTx(tx, c)
	})
}

func (r *ClientRepository) CreateTx(tx *store.Tx, c *models.Client) error {
	if c.Status == "" {
		c.Status = models.StatusActive
	}
	id, err := r.col.NewID(tx, "client")
	if err != nil {
		return err
	}
	c.ID = id
	return r.col.Insert(tx, c, r.now())
}

func (r *ClientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	var c *models.Client
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		c, err = r.col.Get(tx, id)
		return err
	})
	return c, err
}

func (r *ClientRepository) GetTx(tx *store.Tx, id string) (*models.Client, error) {
	return r.col.Get(tx, id)
}

func (r *ClientRepository) Update(ctx context.Context, id string, expectedVersion int64, fn func(*models.Client) error) (*models.Client, error) {
	var out *models.Client
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.Update(tx, id, expectedVersion, r.now(), fn)
		return err
	})
	return out, err
}

// Delete deactivates the client; it stays retrievable by id.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(c *models.Client) error {
			c.Status = models.StatusInactive
			c.Tombstone(now)
			return nil
		})
		return err
	})
}

// List returns active clients, optionally of one business type.
func (r *ClientRepository) List(ctx context.Context, businessType string) ([]*models.Client, error) {
	var out []*models.Client
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.ListTx(tx, businessType)
		return err
	})
	return out, err
}

func (r *ClientRepository) ListTx(tx *store.Tx, businessType string) ([]*models.Client, error) {
	return r.col.List(tx, func(c *models.Client) bool {
		if c.IsDeleted() || c.Status != models.StatusActive {
			return false
		}
		return businessType == "" || c.BusinessType == businessType
	})
}

func (r *ClientRepository) ListAll(ctx context.Context) ([]*models.Client, error) {
	var out []*models.Client
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, nil)
		return err
	})
	return out, err
}
