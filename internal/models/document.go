package models

import (
	"io"
	"time"
)

// Document is a file a student uploaded for one department of a request.
type Document struct {
	ID           string     `db:"id" json:"id"`
	RequestID    string     `db:"request_id" json:"request_id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	Department   Department `db:"department" json:"department"`
	StorageKey   string     `db:"storage_key" json:"-"`
	FileURL      string     `db:"file_url" json:"file_url"`
	FileName     string     `db:"file_name" json:"file_name"`
	OriginalName string     `db:"original_name" json:"original_name"`
	FileSize     int64      `db:"file_size" json:"file_size"`
	MimeType     string     `db:"mime_type" json:"mime_type"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	RequestID  string
	Department *Department
}

// UploadedFile is one file handed to the document service by the transport.
type UploadedFile struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadSeekCloser, error)
}

// UploadResult reports stored documents and whether the request reopened.
type UploadResult struct {
	Documents []Document        `json:"documents"`
	Request   *ClearanceRequest `json:"request,omitempty"`
	Reopened  bool              `json:"reopened"`
}

// DocumentLink is a signed download link.
type DocumentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
