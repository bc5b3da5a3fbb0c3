package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleksandrSemykin/reflow-ocr/internal/models"
)

// Repository is the persistence backend behind the store: session manifests
// plus the page image files they reference. DiskRepository is the production
// backend; MemoryRepository backs tests.
type Repository interface {
	LoadAll() ([]*models.Session, error)
	Save(session *models.Session) error
	Delete(sessionID string) error
	WritePage(sessionID, filename string, data []byte) error
	ReadPage(sessionID, filename string) ([]byte, error)
	DeletePage(sessionID, filename string) error
	PagePath(sessionID, filename string) string
}

// DiskRepository persists sessions under root/sessions/<id>/session.json with
// page files alongside in pages/.
type DiskRepository struct {
	root string
}

func NewDiskRepository(root string) (*DiskRepository, error) {
	sessionsDir := filepath.Join(root, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &DiskRepository{root: root}, nil
}

func (r *DiskRepository) sessionDir(sessionID string) string {
	return filepath.Join(r.root, "sessions", sessionID)
}

func (r *DiskRepository) LoadAll() ([]*models.Session, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []*models.Session
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest := filepath.Join(r.sessionDir(entry.Name()), "session.json")
		data, err := os.ReadFile(manifest)
		if err != nil {
			// A directory without a manifest is not a session.
			continue
		}
		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			// Skip corrupt manifests rather than refusing to start.
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (r *DiskRepository) Save(session *models.Session) error {
	dir := r.sessionDir(session.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "session.json"), data, 0644)
}

func (r *DiskRepository) Delete(sessionID string) error {
	return os.RemoveAll(r.sessionDir(sessionID))
}

func (r *DiskRepository) WritePage(sessionID, filename string, data []byte) error {
	dir := filepath.Join(r.sessionDir(sessionID), "pages")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, filename), data, 0644)
}

func (r *DiskRepository) ReadPage(sessionID, filename string) ([]byte, error) {
	return os.ReadFile(r.PagePath(sessionID, filename))
}

func (r *DiskRepository) DeletePage(sessionID, filename string) error {
	err := os.Remove(r.PagePath(sessionID, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *DiskRepository) PagePath(sessionID, filename string) string {
	return filepath.Join(r.sessionDir(sessionID), "pages", filename)
}

// MemoryRepository keeps everything in maps. Used by tests and by archive
// import dry-runs.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string][]byte
	pages    map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string][]byte),
		pages:    make(map[string][]byte),
	}
}

func (r *MemoryRepository) pageKey(sessionID, filename string) string {
	return sessionID + "/" + filename
}

func (r *MemoryRepository) LoadAll() ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sessions []*models.Session
	for _, data := range r.sessions {
		var session models.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (r *MemoryRepository) Save(session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = data
	return nil
}

func (r *MemoryRepository) Delete(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	prefix := sessionID + "/"
	for key := range r.pages {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.pages, key)
		}
	}
	return nil
}

func (r *MemoryRepository) WritePage(sessionID, filename string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[r.pageKey(sessionID, filename)] = data
	return nil
}

func (r *MemoryRepository) ReadPage(sessionID, filename string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.pages[r.pageKey(sessionID, filename)]
	if !ok {
		return nil, errors.New("page file not found: " + filename)
	}
	return data, nil
}

func (r *MemoryRepository) DeletePage(sessionID, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pages, r.pageKey(sessionID, filename))
	return nil
}

func (r *MemoryRepository) PagePath(sessionID, filename string) string {
	return r.pageKey(sessionID, filename)
}
