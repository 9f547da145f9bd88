// Package files stores uploaded files under a category tree and provides the
// maintenance operations around it (cleanup, backups, statistics).
package files

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/timeutil"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Storage categories. Each one is a subdirectory of the upload root.
const (
	CategoryDocuments = "documents"
	CategoryImages    = "images"
	CategoryReports   = "reports"
	CategoryBackups   = "backups"
	CategoryTemp      = "temp"
)

var Categories = []string{CategoryDocuments, CategoryImages, CategoryReports, CategoryBackups, CategoryTemp}

var imageExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "svg": true, "webp": true,
}

// Mirror receives a copy of every backup created by the manager.
type Mirror interface {
	PutFile(ctx context.Context, key, path string) error
}

type Options struct {
	Dir               string
	MaxBytes          int64
	AllowedExtensions []string
	Clock             timeutil.Clock
	Mirror            Mirror
}

// Source is one file handed to Upload.
type Source struct {
	Name string
	Body io.Reader
}

// UploadOptions apply to every file of an upload call.
type UploadOptions struct {
	Category   string
	UploadedBy string
	Metadata   map[string]string
}

// Result is the outcome of one file of UploadMany.
type Result struct {
	OriginalFilename string             `json:"original_filename"`
	File             *models.FileRecord `json:"file,omitempty"`
	Error            string             `json:"error,omitempty"`
	Err              error              `json:"-"`
}

type Info struct {
	Path       string    `json:"file_path"`
	Size       int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	ModifiedAt time.Time `json:"modified_at"`
	Hash       string    `json:"file_hash"`
}

type CategoryStats struct {
	Size      int64 `json:"size"`
	FileCount int   `json:"file_count"`
}

type StorageStats struct {
	TotalSize  int64                    `json:"total_size"`
	FileCount  int                      `json:"file_count"`
	Categories map[string]CategoryStats `json:"category_stats"`
}

type Manager struct {
	root     string
	maxBytes int64
	allowed  map[string]bool
	now      timeutil.Clock
	mirror   Mirror
	log      zerolog.Logger
}

// NewManager creates the upload root and one directory per category.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		opts.Dir = "uploads"
	}
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	for _, c := range Categories {
		if err := os.MkdirAll(filepath.Join(root, c), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", c, err)
		}
	}

	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock
	}
	return &Manager{
		root:     root,
		maxBytes: opts.MaxBytes,
		allowed:  allowed,
		now:      opts.Clock,
		mirror:   opts.Mirror,
		log:      logging.For("files"),
	}, nil
}

func (m *Manager) Root() string { return m.root }

// Dir returns the directory of a category.
func (m *Manager) Dir(category string) string {
	return filepath.Join(m.root, category)
}

func extension(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// Allowed reports whether name carries an allowed extension.
func (m *Manager) Allowed(name string) bool {
	ext := extension(name)
	return ext != "" && m.allowed[ext]
}

func (m *Manager) allowedList() string {
	exts := make([]string, 0, len(m.allowed))
	for ext := range m.allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return strings.Join(exts, ", ")
}

// CategoryFor picks the storage category from the file extension.
func CategoryFor(name string) string {
	if imageExtensions[extension(name)] {
		return CategoryImages
	}
	return CategoryDocuments
}

func validCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename reduces name to a safe ASCII base name: path separators
// become spaces, runs of whitespace become underscores, anything outside
// [A-Za-z0-9_.-] is dropped and leading dots or underscores are trimmed.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return ' '
		}
		if r > 127 {
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// UniqueName builds the stored name stem_YYYYMMDD_HHMMSS_<8 hex>.ext.
func (m *Manager) UniqueName(original string) string {
	ext := filepath.Ext(original)
	stem := strings.TrimSuffix(original, ext)
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s%s", stem, m.now().Format(timeutil.FileLayout), id, ext)
}

// Upload validates and stores one file and returns its record. The record
// is not persisted; that is the caller's job.
func (m *Manager) Upload(src Source, opts UploadOptions) (*models.FileRecord, error) {
	if src.Body == nil || strings.TrimSpace(src.Name) == "" {
		return nil, apperr.Validation("No file provided")
	}
	if !m.Allowed(src.Name) {
		return nil, apperr.Validation("File type not allowed. Allowed types: %s", m.allowedList())
	}

	original := SanitizeFilename(src.Name)
	if original == "" || extension(original) == "" {
		return nil, apperr.Validation("Invalid filename")
	}

	category := opts.Category
	if category == "" {
		category = CategoryFor(original)
	} else if !validCategory(category) {
		return nil, apperr.Validation("Unknown category %q", category)
	}

	stored := m.UniqueName(original)
	path := filepath.Join(m.Dir(category), stored)

	size, hash, err := m.write(path, src.Body)
	if err != nil {
		return nil, err
	}

	mime := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		mime = mt.String()
	}

	rec := &models.FileRecord{
		ID:               uuid.NewString(),
		OriginalFilename: original,
		Filename:         stored,
		FilePath:         path,
		FileHash:         hash,
		FileSize:         size,
		MimeType:         mime,
		Category:         category,
		UploadedAt:       m.now(),
		UploadedBy:       opts.UploadedBy,
		Extra:            opts.Metadata,
	}
	m.log.Info().Str("file", stored).Str("category", category).Int64("size", size).Msg("file stored")
	return rec, nil
}

// write copies body into path, hashing it on the way. A body larger than the
// size ceiling is rejected and the partial file removed.
func (m *Manager) write(path string, body io.Reader) (int64, string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, "", apperr.Internal(err, "Failed to store file")
	}

	h := sha256.New()
	limited := body
	if m.maxBytes > 0 {
		limited = io.LimitReader(body, m.maxBytes+1)
	}
	n, copyErr := io.Copy(io.MultiWriter(f, h), limited)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(path)
		return 0, "", apperr.Internal(copyErr, "Failed to store file")
	case closeErr != nil:
		os.Remove(path)
		return 0, "", apperr.Internal(closeErr, "Failed to store file")
	case m.maxBytes > 0 && n > m.maxBytes:
		os.Remove(path)
		return 0, "", apperr.Validation("File too large. Maximum size: %gMB", float64(m.maxBytes)/(1024*1024))
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// UploadMany stores each source independently. A failing file yields a
// result carrying its error; the others are still stored.
func (m *Manager) UploadMany(sources []Source, opts UploadOptions) []Result {
	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		rec, err := m.Upload(src, opts)
		if err != nil {
			m.log.Warn().Err(err).Str("file", src.Name).Msg("upload failed")
			results = append(results, Result{OriginalFilename: src.Name, Error: apperr.PublicMessage(err), Err: err})
			continue
		}
		results = append(results, Result{OriginalFilename: rec.OriginalFilename, File: rec})
	}
	return results
}

// resolve turns path into an absolute path inside the upload root.
func (m *Manager) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.root, path)
	}
	abs := filepath.Clean(path)
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.Validation("Path is outside the upload directory")
	}
	return abs, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func notFoundOr(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.NotFound("File %s not found", filepath.Base(path))
	}
	return apperr.Internal(err, "File operation failed")
}

// Info reads size, type, modification time and hash of a stored file.
func (m *Manager) Info(path string) (*Info, error) {
	abs, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, notFoundOr(err, abs)
	}
	if st.IsDir() {
		return nil, apperr.Validation("%s is a directory", filepath.Base(abs))
	}
	hash, err := hashFile(abs)
	if err != nil {
		return nil, notFoundOr(err, abs)
	}
	mime := "application/octet-stream"
	if mt, err := mimetype.DetectFile(abs); err == nil {
		mime = mt.String()
	}
	return &Info{
		Path:       abs,
		Size:       st.Size(),
		MimeType:   mime,
		ModifiedAt: st.ModTime(),
		Hash:       hash,
	}, nil
}

// Open returns a reader over a stored file.
func (m *Manager) Open(path string) (*os.File, error) {
	abs, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, notFoundOr(err, abs)
	}
	return f, nil
}

func (m *Manager) Delete(path string) error {
	abs, err := m.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return notFoundOr(err, abs)
	}
	m.log.Info().Str("file", abs).Msg("file deleted")
	return nil
}

// Move renames src to dst, falling back to copy and remove across devices.
func (m *Manager) Move(src, dst string) error {
	from, err := m.resolve(src)
	if err != nil {
		return err
	}
	to, err := m.resolve(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); err != nil {
		return notFoundOr(err, from)
	}
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	if err := copyFile(from, to, true); err != nil {
		return apperr.Internal(err, "Failed to move file")
	}
	if err := os.Remove(from); err != nil {
		return apperr.Internal(err, "Failed to move file")
	}
	return nil
}

// Copy duplicates src to dst keeping its mode and modification time.
func (m *Manager) Copy(src, dst string) error {
	from, err := m.resolve(src)
	if err != nil {
		return err
	}
	to, err := m.resolve(dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); err != nil {
		return notFoundOr(err, from)
	}
	if err := copyFile(from, to, true); err != nil {
		return apperr.Internal(err, "Failed to copy file")
	}
	return nil
}

// copyFile copies from to to. Without overwrite an existing target fails
// with fs.ErrExist and is left untouched.
func copyFile(from, to string, overwrite bool) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}
	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if overwrite {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	out, err := os.OpenFile(to, flag, st.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		if !overwrite {
			os.Remove(to)
		}
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(to, st.ModTime(), st.ModTime())
}

// DirectorySize sums the sizes of all regular files below dir.
func (m *Manager) DirectorySize(dir string) (int64, error) {
	abs, err := m.resolve(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	err = filepath.WalkDir(abs, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, notFoundOr(err, abs)
	}
	return total, nil
}

// CleanupTemp removes files in the temp category not modified within maxAge
// and returns how many were removed.
func (m *Manager) CleanupTemp(maxAge time.Duration) (int, error) {
	dir := m.Dir(CategoryTemp)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, apperr.Internal(err, "Failed to read temp directory")
	}
	cutoff := m.now().Add(-maxAge)
	deleted := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			m.log.Error().Err(err).Str("file", e.Name()).Msg("temp cleanup failed")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		m.log.Info().Int("deleted", deleted).Msg("temp files cleaned up")
	}
	return deleted, nil
}

// CreateBackup copies src into the backups category and returns the backup
// path. The copy is also handed to the mirror when one is configured; a
// mirror failure is logged and does not fail the local backup.
func (m *Manager) CreateBackup(ctx context.Context, src, name string) (string, error) {
	from, err := m.resolve(src)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(from); err != nil {
		return "", notFoundOr(err, from)
	}
	if name == "" {
		name = fmt.Sprintf("backup_%s_%s", m.now().Format(timeutil.FileLayout), filepath.Base(from))
	}
	name = SanitizeFilename(name)
	if name == "" {
		return "", apperr.Validation("Invalid backup name")
	}

	to := filepath.Join(m.Dir(CategoryBackups), name)
	if err := copyFile(from, to, false); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", apperr.Conflict("Backup %s already exists", name)
		}
		return "", apperr.Internal(err, "Failed to create backup")
	}

	if m.mirror != nil {
		if err := m.mirror.PutFile(ctx, "files/"+name, to); err != nil {
			m.log.Error().Err(err).Str("backup", name).Msg("backup mirror upload failed")
		}
	}
	m.log.Info().Str("backup", name).Msg("backup created")
	return to, nil
}

// StorageStats reports size and file count per category.
func (m *Manager) StorageStats() (*StorageStats, error) {
	stats := &StorageStats{Categories: make(map[string]CategoryStats, len(Categories))}
	for _, c := range Categories {
		dir := m.Dir(c)
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, apperr.Internal(err, "Failed to read storage statistics")
		}
		size, err := m.DirectorySize(dir)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, e := range entries {
			if e.Type().IsRegular() {
				count++
			}
		}
		stats.Categories[c] = CategoryStats{Size: size, FileCount: count}
		stats.TotalSize += size
		stats.FileCount += count
	}
	return stats, nil
}
