package models

import "time"

// FileRecord describes one stored upload.
type FileRecord struct {
	ID               string            `json:"id"`
	OriginalFilename string            `json:"original_filename"`
	Filename         string            `json:"filename"`
	FilePath         string            `json:"file_path"`
	FileHash         string            `json:"file_hash"`
	FileSize         int64             `json:"file_size"`
	MimeType         string            `json:"mime_type"`
	Category         string            `json:"category"`
	UploadedAt       time.Time         `json:"uploaded_at"`
	UploadedBy       string            `json:"uploaded_by"`
	Extra            map[string]string `json:"metadata,omitempty"`
	Meta
}

func (f *FileRecord) RecordID() string { return f.ID }
