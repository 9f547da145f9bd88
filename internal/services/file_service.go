package services

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/files"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/repositories"

	"github.com/rs/zerolog"
)

// FileService persists the records of files stored by the file manager.
type FileService struct {
	Repo     *repositories.FileRepository
	Manager  *files.Manager
	Notifier Notifier
	log      zerolog.Logger
}

func NewFileService(repo *repositories.FileRepository, manager *files.Manager, n Notifier) *FileService {
	return &FileService{Repo: repo, Manager: manager, Notifier: notifierOrNop(n), log: logging.For("files")}
}

// Upload stores every source and persists a record for each one stored. A
// record that cannot be persisted has its file removed again.
func (s *FileService) Upload(ctx context.Context, actor models.Actor, sources []files.Source, opts files.UploadOptions) ([]files.Result, error) {
	if len(sources) == 0 {
		return nil, apperr.Validation("No file provided")
	}
	opts.UploadedBy = actor.ID

	results := s.Manager.UploadMany(sources, opts)
	for i := range results {
		rec := results[i].File
		if rec == nil {
			continue
		}
		if err := s.Repo.Create(ctx, rec); err != nil {
			if rmErr := s.Manager.Delete(rec.FilePath); rmErr != nil {
				s.log.Error().Err(rmErr).Str("file", rec.Filename).Msg("orphaned upload not removed")
			}
			results[i] = files.Result{OriginalFilename: rec.OriginalFilename, Error: apperr.PublicMessage(err), Err: err}
			continue
		}
		s.Notifier.NotifyUser(actor.ID, "File uploaded",
			"File "+rec.OriginalFilename+" uploaded successfully",
			map[string]interface{}{"type": "file_uploaded", "file_id": rec.ID, "category": rec.Category})
	}
	return results, nil
}

func (s *FileService) List(ctx context.Context, actor models.Actor, category, uploadedBy string) ([]*models.FileRecord, error) {
	if !actor.IsStaff() {
		uploadedBy = actor.ID
	}
	return s.Repo.List(ctx, category, uploadedBy)
}

// Get returns a live record the actor may see. Employees only see their own
// uploads.
func (s *FileService) Get(ctx context.Context, actor models.Actor, id string) (*models.FileRecord, error) {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted() {
		return nil, apperr.NotFound("File not found")
	}
	if !actor.IsStaff() && rec.UploadedBy != actor.ID {
		return nil, apperr.Forbidden("Access denied")
	}
	return rec, nil
}

// Open returns the record and a reader over its content. The caller closes
// the file.
func (s *FileService) Open(ctx context.Context, actor models.Actor, id string) (*models.FileRecord, *os.File, error) {
	rec, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.Manager.Open(rec.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return rec, f, nil
}

// Delete tombstones the record and removes the stored file. A file already
// missing from disk does not block the delete.
func (s *FileService) Delete(ctx context.Context, actor models.Actor, id string) error {
	rec, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.Manager.Delete(rec.FilePath); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return err
	}
	s.log.Info().Str("file_id", id).Str("by", actor.ID).Msg("file deleted")
	return nil
}

// Recategorize moves a stored file into another category.
func (s *FileService) Recategorize(ctx context.Context, actor models.Actor, id, category string) (*models.FileRecord, error) {
	rec, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !isCategory(category) {
		return nil, apperr.Validation("Unknown category %q", category)
	}
	if rec.Category == category {
		return rec, nil
	}

	dst := filepath.Join(s.Manager.Dir(category), rec.Filename)
	if err := s.Manager.Move(rec.FilePath, dst); err != nil {
		return nil, err
	}
	updated, err := s.Repo.Update(ctx, id, func(f *models.FileRecord) error {
		f.Category = category
		f.FilePath = dst
		return nil
	})
	if err != nil {
		if mvErr := s.Manager.Move(dst, rec.FilePath); mvErr != nil {
			s.log.Error().Err(mvErr).Str("file_id", id).Msg("file left in new category after failed update")
		}
		return nil, err
	}
	return updated, nil
}

func isCategory(c string) bool {
	for _, known := range files.Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Backup copies a stored file into the backups category.
func (s *FileService) Backup(ctx context.Context, actor models.Actor, id, name string) (string, error) {
	rec, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", err
	}
	return s.Manager.CreateBackup(ctx, rec.FilePath, name)
}

func (s *FileService) Statistics() (*files.StorageStats, error) {
	return s.Manager.StorageStats()
}

// Cleanup removes temp files older than maxAge. Admin only.
func (s *FileService) Cleanup(actor models.Actor, maxAge time.Duration) (int, error) {
	if !actor.IsAdmin() {
		return 0, apperr.Forbidden("Insufficient permissions")
	}
	if maxAge < 0 {
		return 0, apperr.Validation("max_age_hours must not be negative")
	}
	return s.Manager.CleanupTemp(maxAge)
}
