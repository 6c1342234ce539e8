package documents

import "time"

// Document represents an uploaded document attached to a deal.
type Document struct {
	ID            string
	DealID        string
	UserID        string
	FileName      string
	MimeType      string
	SizeBytes     int64
	StorageKey    string
	ExtractedText string
	CreatedAt     time.Time
}
