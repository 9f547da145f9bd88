package repositories

import (
	"context"

	"erp-backend/internal/models"
	"erp-backend/internal/store"
	"erp-backend/internal/timeutil"
)

// FileRepository keeps the metadata of uploaded files so they can be listed
// and fetched by id.
type FileRepository struct {
	store *store.Store
	col   *store.Collection[models.FileRecord, *models.FileRecord]
	now   timeutil.Clock
}

func NewFileRepository(s *store.Store, clock timeutil.Clock) *FileRepository {
	return &FileRepository{
		store: s,
		col:   store.NewCollection[models.FileRecord, *models.FileRecord]("files", "file"),
		now:   clock,
	}
}

// Create stores rec under its own (uuid) id.
func (r *FileRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		return r.col.Insert(tx, rec, r.now())
	})
}

func (r *FileRepository) Get(ctx context.Context, id string) (*models.FileRecord, error) {
	var f *models.FileRecord
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		f, err = r.col.Get(tx, id)
		return err
	})
	return f, err
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *store.Tx) error {
		now := r.now()
		_, err := r.col.Update(tx, id, 0, now, func(f *models.FileRecord) error {
			f.Tombstone(now)
			return nil
		})
		return err
	})
}

// List returns live file records, optionally of one category or uploader.
func (r *FileRepository) List(ctx context.Context, category, uploadedBy string) ([]*models.FileRecord, error) {
	var out []*models.FileRecord
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.List(tx, func(f *models.FileRecord) bool {
			if f.IsDeleted() {
				return false
			}
			if category != "" && f.Category != category {
				return false
			}
			return uploadedBy == "" || f.UploadedBy == uploadedBy
		})
		return err
	})
	return out, err
}

func (r *FileRepository) Update(ctx context.Context, id string, fn func(*models.FileRecord) error) (*models.FileRecord, error) {
	var out *models.FileRecord
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.col.Update(tx, id, 0, r.now(), fn)
		return err
	})
	return out, err
}
