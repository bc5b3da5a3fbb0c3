package storage

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleksandrSemykin/reflow-ocr/internal/models"
)

// archiveManifest is the name of the session manifest inside a
// .reflow-session archive. Page files sit under pages/ next to it.
const archiveManifest = "session.json"

// ExportArchive serializes a session (metadata, document, page files) into a
// single zip container. Importing the result reproduces the session's page
// order, page metadata, and document content.
func (s *Store) ExportArchive(sessionID string) ([]byte, error) {
	session, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)

	manifest, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session manifest: %w", err)
	}
	w, err := archive.Create(archiveManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest entry: %w", err)
	}
	if _, err := w.Write(manifest); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	for _, page := range session.Pages {
		data, err := s.repo.ReadPage(sessionID, page.Filename)
		if err != nil {
			slog.Warn("Skipping missing page file in archive", "session_id", sessionID, "filename", page.Filename, "err", err)
			continue
		}
		w, err := archive.Create("pages/" + page.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create page entry: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write page %s: %w", page.Filename, err)
		}
	}

	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportArchive restores a session from archive bytes under fresh session and
// page identities. Page order, page metadata, and the document survive intact;
// the imported session always starts as a draft with its document carried over.
func (s *Store) ImportArchive(data []byte) (*models.Session, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("not a valid session archive: %w", err)
	}

	var source *models.Session
	payloads := make(map[string][]byte)
	for _, file := range reader.File {
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", file.Name, err)
		}
		if file.Name == archiveManifest {
			var session models.Session
			if err := json.Unmarshal(content, &session); err != nil {
				return nil, fmt.Errorf("invalid session manifest: %w", err)
			}
			source = &session
			continue
		}
		payloads[file.Name] = content
	}
	if source == nil {
		return nil, fmt.Errorf("archive is missing %s", archiveManifest)
	}

	now := time.Now().UTC()
	imported := &models.Session{
		ID:               uuid.NewString(),
		Name:             source.Name + " (imported)",
		Description:      source.Description,
		Status:           models.StatusDraft,
		AutosaveEnabled:  true,
		Pages:            make([]models.Page, 0, len(source.Pages)),
		Document:         source.Document,
		LastRecognizedAt: source.LastRecognizedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if imported.Document != nil {
		imported.Status = models.StatusReady
	}

	for i, page := range source.Pages {
		pageID := uuid.NewString()
		filename := pageID + pageExtension(page.Filename, page.Metadata.MimeType)
		content := payloads["pages/"+page.Filename]
		if err := s.repo.WritePage(imported.ID, filename, content); err != nil {
			return nil, fmt.Errorf("failed to restore page file: %w", err)
		}
		imported.Pages = append(imported.Pages, models.Page{
			ID:           pageID,
			Index:        i,
			Filename:     filename,
			OriginalName: page.OriginalName,
			Source:       models.SourceImport,
			Metadata:     page.Metadata,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	s.mu.Lock()
	s.entries[imported.ID] = &entry{session: imported, dirty: true}
	s.mu.Unlock()

	// Persist right away so the import survives a crash before the next
	// autosave tick. On failure the entry stays dirty for retry.
	if err := s.FlushSession(imported.ID); err != nil {
		slog.Warn("Persisting imported session failed, autosave will retry", "session_id", imported.ID, "err", err)
	}

	return imported.Clone(), nil
}
