// Package storage is the single source of truth for session, page, and
// document state. All mutation passes through it and serializes on a
// per-session lock, so autosave flushes and recognition commits never
// interleave.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
	"github.com/AleksandrSemykin/reflow-ocr/internal/models"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrPageNotFound is returned for unknown page ids within a session.
	ErrPageNotFound = errors.New("page not found")
)

// UnsupportedImageError reports a rejected upload. Other files in the same
// call still succeed.
type UnsupportedImageError struct {
	Filename string
	Err      error
}

func (e *UnsupportedImageError) Error() string {
	return fmt.Sprintf("unsupported image %q: %v", e.Filename, e.Err)
}

func (e *UnsupportedImageError) Unwrap() error { return e.Err }

// PageUpload is one incoming page file.
type PageUpload struct {
	Filename string
	Source   models.PageSource
	Data     []byte
}

// UpdateRequest carries optional session metadata changes.
type UpdateRequest struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	AutosaveEnabled *bool   `json:"autosave_enabled,omitempty"`
}

type entry struct {
	mu      sync.Mutex
	session *models.Session
	dirty   bool
}

// Store keeps sessions in memory and persists changes through a Repository.
type Store struct {
	repo Repository

	mu      sync.RWMutex
	entries map[string]*entry
}

// New loads existing sessions from the repository. Sessions left in
// processing by an earlier crash resolve to error: there is no run to back
// that status anymore.
func New(repo Repository) (*Store, error) {
	sessions, err := repo.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	store := &Store{
		repo:    repo,
		entries: make(map[string]*entry, len(sessions)),
	}
	for _, session := range sessions {
		if session.Status == models.StatusProcessing {
			session.Status = models.StatusError
			session.LastError = "recognition interrupted by shutdown"
		}
		store.entries[session.ID] = &entry{session: session}
	}
	return store, nil
}

// Create makes a fresh draft session. An empty name gets a timestamped default.
func (s *Store) Create(name, description string) *models.Session {
	now := time.Now().UTC()
	if name == "" {
		name = "Session " + now.Format("2006-01-02 15:04:05")
	}
	session := &models.Session{
		ID:              uuid.NewString(),
		Name:            name,
		Description:     description,
		Status:          models.StatusDraft,
		AutosaveEnabled: true,
		Pages:           []models.Page{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	s.entries[session.ID] = &entry{session: session, dirty: true}
	s.mu.Unlock()

	return session.Clone()
}

func (s *Store) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return e, nil
}

// withSession runs fn under the session's write lock and marks it dirty when
// fn reports a mutation.
func (s *Store) withSession(sessionID string, fn func(session *models.Session) (bool, error)) (*models.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	mutated, err := fn(e.session)
	if err != nil {
		return nil, err
	}
	if mutated {
		e.session.UpdatedAt = time.Now().UTC()
		e.dirty = true
	}
	return e.session.Clone(), nil
}

// Get returns a deep copy of the session.
func (s *Store) Get(sessionID string) (*models.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// List returns session summaries, most recently updated first.
func (s *Store) List() []models.Summary {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	summaries := make([]models.Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		summaries = append(summaries, e.session.Summary())
		e.mu.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// Update applies metadata changes.
func (s *Store) Update(sessionID string, req UpdateRequest) (*models.Session, error) {
	return s.withSession(sessionID, func(session *models.Session) (bool, error) {
		mutated := false
		if req.Name != nil && *req.Name != "" {
			session.Name = *req.Name
			mutated = true
		}
		if req.Description != nil {
			session.Description = *req.Description
			mutated = true
		}
		if req.AutosaveEnabled != nil {
			session.AutosaveEnabled = *req.AutosaveEnabled
			mutated = true
		}
		return mutated, nil
	})
}

// AddPages appends pages, assigning indices that continue from the current
// maximum. Files that are not decodable images are reported in the returned
// slice; valid files in the same call still succeed.
func (s *Store) AddPages(sessionID string, uploads []PageUpload) (*models.Session, []*UnsupportedImageError, error) {
	var rejected []*UnsupportedImageError
	session, err := s.withSession(sessionID, func(session *models.Session) (bool, error) {
		mutated := false
		for _, upload := range uploads {
			meta, err := decodePageMetadata(upload.Data)
			if err != nil {
				rejected = append(rejected, &UnsupportedImageError{Filename: upload.Filename, Err: err})
				continue
			}
			now := time.Now().UTC()
			pageID := uuid.NewString()
			filename := pageID + pageExtension(upload.Filename, meta.MimeType)
			if err := s.repo.WritePage(session.ID, filename, upload.Data); err != nil {
				return mutated, fmt.Errorf("failed to store page file: %w", err)
			}
			source := upload.Source
			if source == "" {
				source = models.SourceUpload
			}
			session.Pages = append(session.Pages, models.Page{
				ID:           pageID,
				Index:        len(session.Pages),
				Filename:     filename,
				OriginalName: upload.Filename,
				Source:       source,
				Metadata:     meta,
				CreatedAt:    now,
				UpdatedAt:    now,
			})
			mutated = true
		}
		return mutated, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, rejected, nil
}

// RemovePage deletes a page, destroys its stored file, and reindexes the
// remainder contiguously.
func (s *Store) RemovePage(sessionID, pageID string) (*models.Session, error) {
	var removed string
	session, err := s.withSession(sessionID, func(session *models.Session) (bool, error) {
		remaining := session.Pages[:0:0]
		for _, page := range session.Pages {
			if page.ID == pageID {
				removed = page.Filename
				continue
			}
			remaining = append(remaining, page)
		}
		if removed == "" {
			return false, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
		}
		now := time.Now().UTC()
		for i := range remaining {
			if remaining[i].Index != i {
				remaining[i].Index = i
				remaining[i].UpdatedAt = now
			}
		}
		session.Pages = remaining
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	// Best effort: the page is already gone from the session manifest, and a
	// leftover file cannot resurrect it.
	if err := s.repo.DeletePage(sessionID, removed); err != nil {
		slog.Warn("Removing stored page file failed", "session_id", sessionID, "filename", removed, "err", err)
	}
	return session, nil
}

// ReorderPages rearranges pages to match the given id order. Unknown ids are
// ignored; pages missing from the order keep their relative position at the end.
func (s *Store) ReorderPages(sessionID string, order []string) (*models.Session, error) {
	return s.withSession(sessionID, func(session *models.Session) (bool, error) {
		byID := make(map[string]models.Page, len(session.Pages))
		for _, page := range session.Pages {
			byID[page.ID] = page
		}
		reordered := make([]models.Page, 0, len(session.Pages))
		for _, pageID := range order {
			page, ok := byID[pageID]
			if !ok {
				continue
			}
			delete(byID, pageID)
			reordered = append(reordered, page)
		}
		for _, page := range session.Pages {
			if _, left := byID[page.ID]; left {
				reordered = append(reordered, page)
			}
		}
		now := time.Now().UTC()
		for i := range reordered {
			if reordered[i].Index != i {
				reordered[i].Index = i
				reordered[i].UpdatedAt = now
			}
		}
		session.Pages = reordered
		return true, nil
	})
}

// SetDocument atomically replaces the session's document and marks it ready.
func (s *Store) SetDocument(sessionID string, doc *document.Document) (*models.Session, error) {
	return s.withSession(sessionID, func(session *models.Session) (bool, error) {
		now := time.Now().UTC()
		session.Document = doc
		session.Status = models.StatusReady
		session.LastRecognizedAt = &now
		session.LastError = ""
		return true, nil
	})
}

// SetError marks the session failed. Any document from an earlier successful
// run is left untouched.
func (s *Store) SetError(sessionID, message string) (*models.Session, error) {
	return s.withSession(sessionID, func(session *models.Session) (bool, error) {
		session.Status = models.StatusError
		session.LastError = message
		return true, nil
	})
}

// SetStatus transitions the lifecycle status and returns the previous value.
// The pipeline uses it to enter processing and to restore the pre-run status
// after cancellation.
func (s *Store) SetStatus(sessionID string, status models.SessionStatus) (models.SessionStatus, error) {
	var previous models.SessionStatus
	_, err := s.withSession(sessionID, func(session *models.Session) (bool, error) {
		previous = session.Status
		session.Status = status
		if status == models.StatusProcessing {
			session.LastError = ""
		}
		return true, nil
	})
	return previous, err
}

// Delete removes the session and everything it owns.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	_, ok := s.entries[sessionID]
	delete(s.entries, sessionID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s.repo.Delete(sessionID)
}

// PagePath resolves the stored file location for a page.
func (s *Store) PagePath(sessionID, pageID string) (string, error) {
	session, err := s.Get(sessionID)
	if err != nil {
		return "", err
	}
	page, ok := session.PageByID(pageID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	return s.repo.PagePath(sessionID, page.Filename), nil
}

// ReadPage returns the stored image bytes for a page.
func (s *Store) ReadPage(sessionID, pageID string) ([]byte, error) {
	session, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	page, ok := session.PageByID(pageID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	return s.repo.ReadPage(sessionID, page.Filename)
}

// Flush persists dirty sessions whose autosave flag is on. The periodic
// autosaver calls it; sessions that opted out wait for FlushAll. Failures are
// returned so the autosaver can log them; the dirty flag stays set for retry
// on the next tick.
func (s *Store) Flush() error { return s.flush(false) }

// FlushAll persists every dirty session, ignoring the autosave flag. The flag
// opts a session out of periodic saves, not out of surviving a restart, so
// shutdown flushes go through here.
func (s *Store) FlushAll() error { return s.flush(true) }

func (s *Store) flush(force bool) error {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var errs []error
	for _, e := range entries {
		e.mu.Lock()
		if e.dirty && (force || e.session.AutosaveEnabled) {
			if err := s.repo.Save(e.session); err != nil {
				errs = append(errs, fmt.Errorf("session %s: %w", e.session.ID, err))
			} else {
				e.dirty = false
			}
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}

// FlushSession persists one session regardless of its autosave flag.
func (s *Store) FlushSession(sessionID string) error {
	e, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.repo.Save(e.session); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

func decodePageMetadata(data []byte) (models.PageMetadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.PageMetadata{}, err
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/" + format
	}
	return models.PageMetadata{
		Width:    cfg.Width,
		Height:   cfg.Height,
		MimeType: mimeType,
	}, nil
}

func pageExtension(originalName, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(originalName)); ext != "" {
		return ext
	}
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
