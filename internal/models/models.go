// Package models holds the session and page records shared by the store,
// pipeline, and HTTP layer.
package models

import (
	"time"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusDraft      SessionStatus = "draft"
	StatusProcessing SessionStatus = "processing"
	StatusReady      SessionStatus = "ready"
	StatusError      SessionStatus = "error"
)

// PageSource records how a page entered the session.
type PageSource string

const (
	SourceUpload PageSource = "upload"
	SourcePaste  PageSource = "paste"
	SourceURL    PageSource = "url"
	SourceImport PageSource = "import"
)

// PageMetadata carries decoded image properties.
type PageMetadata struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type,omitempty"`
}

// Page is one scanned page owned by a session. Index is its position within
// the session and stays contiguous across removals.
type Page struct {
	ID           string       `json:"id"`
	Index        int          `json:"index"`
	Filename     string       `json:"filename"`
	OriginalName string       `json:"original_name"`
	Source       PageSource   `json:"source"`
	Metadata     PageMetadata `json:"metadata"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Session is a unit of work: uploaded pages plus, once recognized, a Document.
type Session struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	Status           SessionStatus      `json:"status"`
	AutosaveEnabled  bool               `json:"autosave_enabled"`
	Pages            []Page             `json:"pages"`
	Document         *document.Document `json:"document,omitempty"`
	LastRecognizedAt *time.Time         `json:"last_recognized_at,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Summary is the list-view projection of a session.
type Summary struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Status           SessionStatus `json:"status"`
	PageCount        int           `json:"page_count"`
	HasDocument      bool          `json:"has_document"`
	LastRecognizedAt *time.Time    `json:"last_recognized_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Summary projects the session for list responses.
func (s *Session) Summary() Summary {
	return Summary{
		ID:               s.ID,
		Name:             s.Name,
		Status:           s.Status,
		PageCount:        len(s.Pages),
		HasDocument:      s.Document != nil,
		LastRecognizedAt: s.LastRecognizedAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

// Clone returns a deep copy so callers can read a session without holding the
// store's per-session lock.
func (s *Session) Clone() *Session {
	copied := *s
	copied.Pages = make([]Page, len(s.Pages))
	copy(copied.Pages, s.Pages)
	if s.Document != nil {
		doc := *s.Document
		doc.Pages = make([]document.Page, len(s.Document.Pages))
		for i, page := range s.Document.Pages {
			page.Blocks = append([]document.Block(nil), page.Blocks...)
			for j, block := range page.Blocks {
				block.Spans = append([]document.Span(nil), block.Spans...)
				page.Blocks[j] = block
			}
			doc.Pages[i] = page
		}
		copied.Document = &doc
	}
	if s.LastRecognizedAt != nil {
		at := *s.LastRecognizedAt
		copied.LastRecognizedAt = &at
	}
	return &copied
}

// PageByID finds a page by identity.
func (s *Session) PageByID(pageID string) (Page, bool) {
	for _, page := range s.Pages {
		if page.ID == pageID {
			return page, true
		}
	}
	return Page{}, false
}
