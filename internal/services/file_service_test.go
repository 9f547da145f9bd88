package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/files"
	"erp-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileService(t *testing.T, env *testEnv) *FileService {
	t.Helper()
	m, err := files.NewManager(files.Options{
		Dir:               t.TempDir(),
		MaxBytes:          1 << 20,
		AllowedExtensions: []string{"txt", "pdf", "png"},
		Clock:             env.clock.Now,
	})
	require.NoError(t, err)
	return NewFileService(env.repos.Files, m, env.notifier)
}

func TestFileUploadPersistsRecords(t *testing.T) {
	env := newTestEnv(t)
	svc := newFileService(t, env)
	ctx := context.Background()
	emp := models.Actor{ID: "employee_001", Role: models.RoleEmployee}

	results, err := svc.Upload(ctx, emp, []files.Source{
		{Name: "plan.txt", Body: strings.NewReader("phase one")},
		{Name: "setup.exe", Body: strings.NewReader("MZ")},
	}, files.UploadOptions{Metadata: map[string]string{"description": "site plan"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].File)
	assert.NotEmpty(t, results[1].Error)

	rec, err := svc.Get(ctx, emp, results[0].File.ID)
	require.NoError(t, err)
	assert.Equal(t, "employee_001", rec.UploadedBy)
	assert.Equal(t, "site plan", rec.Extra["description"])

	assert.Len(t, env.notifier.Events("user"), 1)

	_, err = svc.Upload(ctx, emp, nil, files.UploadOptions{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestFileVisibilityAndDownload(t *testing.T) {
	env := newTestEnv(t)
	svc := newFileService(t, env)
	ctx := context.Background()
	owner := models.Actor{ID: "employee_001", Role: models.RoleEmployee}
	other := models.Actor{ID: "employee_002", Role: models.RoleEmployee}
	manager := models.Actor{ID: "manager_001", Role: models.RoleManager}

	results, err := svc.Upload(ctx, owner, []files.Source{{Name: "notes.txt", Body: strings.NewReader("abc")}}, files.UploadOptions{})
	require.NoError(t, err)
	id := results[0].File.ID

	_, err = svc.Get(ctx, other, id)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	list, err := svc.List(ctx, other, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.List(ctx, manager, files.CategoryDocuments, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	rec, f, err := svc.Open(ctx, manager, id)
	require.NoError(t, err)
	content, err := io.ReadAll(f)
	f.Close()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(content))
	assert.Equal(t, "notes.txt", rec.OriginalFilename)
}

func TestFileDeleteRemovesRecordAndContent(t *testing.T) {
	env := newTestEnv(t)
	svc := newFileService(t, env)
	ctx := context.Background()
	owner := models.Actor{ID: "employee_001", Role: models.RoleEmployee}

	results, err := svc.Upload(ctx, owner, []files.Source{{Name: "old.txt", Body: strings.NewReader("x")}}, files.UploadOptions{})
	require.NoError(t, err)
	rec := results[0].File

	require.NoError(t, svc.Delete(ctx, owner, rec.ID))
	_, err = os.Stat(rec.FilePath)
	assert.True(t, os.IsNotExist(err))

	_, err = svc.Get(ctx, owner, rec.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	list, err := svc.List(ctx, adminActor, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileRecategorizeMovesContent(t *testing.T) {
	env := newTestEnv(t)
	svc := newFileService(t, env)
	ctx := context.Background()

	results, err := svc.Upload(ctx, adminActor, []files.Source{{Name: "q1.pdf", Body: strings.NewReader("%PDF-1.4")}}, files.UploadOptions{})
	require.NoError(t, err)
	rec := results[0].File
	assert.Equal(t, files.CategoryDocuments, rec.Category)

	moved, err := svc.Recategorize(ctx, adminActor, rec.ID, files.CategoryReports)
	require.NoError(t, err)
	assert.Equal(t, files.CategoryReports, moved.Category)
	assert.Equal(t, svc.Manager.Dir(files.CategoryReports), filepath.Dir(moved.FilePath))
	_, err = os.Stat(moved.FilePath)
	assert.NoError(t, err)
	_, err = os.Stat(rec.FilePath)
	assert.True(t, os.IsNotExist(err))

	_, err = svc.Recategorize(ctx, adminActor, rec.ID, "misc")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	backup, err := svc.Backup(ctx, adminActor, rec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, svc.Manager.Dir(files.CategoryBackups), filepath.Dir(backup))
}

func TestFileCleanupIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	svc := newFileService(t, env)

	_, err := svc.Cleanup(models.Actor{ID: "manager_001", Role: models.RoleManager}, time.Hour)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	stale := filepath.Join(svc.Manager.Dir(files.CategoryTemp), "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	past := env.clock.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	n, err := svc.Cleanup(adminActor, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := svc.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Categories[files.CategoryTemp].FileCount)
}
