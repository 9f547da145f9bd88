package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/files"
	"erp-backend/internal/services"
	"erp-backend/pkg/utils"
)

const multipartMemory = 8 << 20

type FileHandler struct {
	Service *services.FileService
	// MaxRequestBytes caps the whole multipart body. Per-file limits are
	// enforced by the file manager.
	MaxRequestBytes int64
}

func NewFileHandler(s *services.FileService, maxRequestBytes int64) *FileHandler {
	return &FileHandler{Service: s, MaxRequestBytes: maxRequestBytes}
}

// Upload accepts one or more parts named "file" or "files". Form fields
// category and description are applied to every part.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.MaxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		utils.WriteError(w, apperr.Validation("Invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["file"]...)
	headers = append(headers, r.MultipartForm.File["files"]...)
	if len(headers) == 0 {
		utils.WriteError(w, apperr.Validation("No file provided"))
		return
	}

	sources := make([]files.Source, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			utils.WriteError(w, apperr.Validation("Unreadable file %q", fh.Filename))
			return
		}
		defer f.Close()
		sources = append(sources, files.Source{Name: fh.Filename, Body: f})
	}

	opts := files.UploadOptions{Category: r.FormValue("category")}
	if desc := r.FormValue("description"); desc != "" {
		opts.Metadata = map[string]string{"description": desc}
	}

	results, err := h.Service.Upload(r.Context(), actorOf(r), sources, opts)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if len(results) == 1 {
		if results[0].File == nil {
			utils.WriteError(w, results[0].Err)
			return
		}
		utils.JSON(w, http.StatusCreated, map[string]interface{}{
			"message": "File uploaded successfully",
			"file":    results[0].File,
		})
		return
	}

	stored := 0
	for _, res := range results {
		if res.File != nil {
			stored++
		}
	}
	status := http.StatusCreated
	if stored == 0 {
		status = http.StatusBadRequest
	}
	utils.JSON(w, status, map[string]interface{}{
		"message":  fmt.Sprintf("%d of %d files uploaded", stored, len(results)),
		"results":  results,
		"uploaded": stored,
	})
}

// ListFiles supports ?category=&uploaded_by=
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.Service.List(r.Context(), actorOf(r), q.Get("category"), q.Get("uploaded_by"))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, list("files", recs, len(recs)))
}

func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Get(r.Context(), actorOf(r), pathID(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"file": rec})
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	rec, f, err := h.Service.Open(r.Context(), actorOf(r), pathID(r))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	defer f.Close()

	if rec.MimeType != "" {
		w.Header().Set("Content-Type", rec.MimeType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	http.ServeContent(w, r, rec.OriginalFilename, rec.UploadedAt, f)
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), actorOf(r), pathID(r)); err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
}

type recategorizeRequest struct {
	Category string `json:"category"`
}

func (h *FileHandler) Recategorize(w http.ResponseWriter, r *http.Request) {
	var req recategorizeRequest
	if err := utils.Decode(r, &req); err != nil {
		utils.WriteError(w, err)
		return
	}
	rec, err := h.Service.Recategorize(r.Context(), actorOf(r), pathID(r), req.Category)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "File moved successfully",
		"file":    rec,
	})
}

type backupRequest struct {
	Name string `json:"name"`
}

// Backup copies a stored file into the backups category. The body is
// optional.
func (h *FileHandler) Backup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if r.ContentLength > 0 {
		if err := utils.Decode(r, &req); err != nil {
			utils.WriteError(w, err)
			return
		}
	}
	path, err := h.Service.Backup(r.Context(), actorOf(r), pathID(r), req.Name)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusCreated, map[string]string{
		"message":     "Backup created successfully",
		"backup_path": path,
	})
}

func (h *FileHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Statistics()
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{"statistics": stats})
}

type cleanupRequest struct {
	MaxAgeHours *int `json:"max_age_hours"`
}

// Cleanup removes old files from the temp category. max_age_hours defaults
// to 24.
func (h *FileHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.ContentLength > 0 {
		if err := utils.Decode(r, &req); err != nil {
			utils.WriteError(w, err)
			return
		}
	}
	hours := 24
	if req.MaxAgeHours != nil {
		hours = *req.MaxAgeHours
	}
	removed, err := h.Service.Cleanup(actorOf(r), time.Duration(hours)*time.Hour)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Cleanup completed",
		"removed_files": removed,
	})
}
