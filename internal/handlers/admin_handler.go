package handlers

import (
	"context"
	"fmt"
	"net/http"

	"erp-backend/internal/apperr"
	"erp-backend/internal/backup"
	"erp-backend/internal/logging"
	"erp-backend/internal/models"
	"erp-backend/internal/monitoring"
	"erp-backend/internal/timeutil"
	"erp-backend/pkg/utils"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const maxImportBytes = 64 << 20

// DocumentStore exports and replaces the whole dataset.
type DocumentStore interface {
	Export(ctx context.Context) (*models.Document, error)
	Import(ctx context.Context, doc *models.Document) error
}

// CacheClearer is notified after an import replaces the data.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

type AdminHandler struct {
	Documents DocumentStore
	Backups   *backup.Scheduler   // nil when object storage is not configured
	Watcher   *monitoring.Watcher // nil when host monitoring is disabled
	Cache     CacheClearer
	now       timeutil.Clock
	log       zerolog.Logger
}

func NewAdminHandler(docs DocumentStore, backups *backup.Scheduler, watcher *monitoring.Watcher, cache CacheClearer, clock timeutil.Clock) *AdminHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &AdminHandler{
		Documents: docs,
		Backups:   backups,
		Watcher:   watcher,
		Cache:     cache,
		now:       clock,
		log:       logging.For("admin"),
	}
}

// Export downloads the full dataset as one JSON document.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Documents.Export(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	name := fmt.Sprintf("erp_export_%s.json", h.now().In(timeutil.Loc).Format(timeutil.FileLayout))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	utils.JSON(w, http.StatusOK, doc)
}

// Import replaces every collection with the uploaded document.
func (h *AdminHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	var doc models.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		utils.WriteError(w, apperr.Validation("Invalid document"))
		return
	}
	if err := h.Documents.Import(r.Context(), &doc); err != nil {
		utils.WriteError(w, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.ClearCache(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("analytics cache not cleared after import")
		}
	}

	h.log.Info().
		Str("by", actorOf(r).ID).
		Int("users", len(doc.Users)).
		Int("projects", len(doc.Projects)).
		Msg("dataset imported")
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Data imported successfully",
		"users":      len(doc.Users),
		"clients":    len(doc.Clients),
		"projects":   len(doc.Projects),
		"leads":      len(doc.Leads),
		"tasks":      len(doc.Tasks),
		"attendance": len(doc.Attendance),
	})
}

// Backup forces an object storage backup now.
func (h *AdminHandler) Backup(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		utils.WriteError(w, apperr.Validation("Backups are not configured"))
		return
	}
	res, err := h.Backups.Run(r.Context())
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Backup completed",
		"backup":  res,
	})
}

func (h *AdminHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		utils.JSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"pending": h.Backups.Pending(),
		"last":    h.Backups.Last(),
	})
}

// Monitoring returns the latest host sample and recent alerts.
func (h *AdminHandler) Monitoring(w http.ResponseWriter, r *http.Request) {
	if h.Watcher == nil {
		utils.JSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"host":    h.Watcher.Latest(),
		"alerts":  h.Watcher.Alerts(),
	})
}
