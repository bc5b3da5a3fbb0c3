package storage

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
	"github.com/AleksandrSemykin/reflow-ocr/internal/models"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(NewMemoryRepository())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestCreateDefaults(t *testing.T) {
	store := newTestStore(t)

	session := store.Create("", "")
	if session.ID == "" {
		t.Error("expected generated session id")
	}
	if session.Status != models.StatusDraft {
		t.Errorf("expected draft status, got %s", session.Status)
	}
	if !session.AutosaveEnabled {
		t.Error("autosave should default to enabled")
	}
	if session.Name == "" {
		t.Error("expected a default name for unnamed sessions")
	}
	if len(session.Pages) != 0 {
		t.Errorf("expected empty page list, got %d pages", len(session.Pages))
	}
}

func TestGetUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddPagesPartialSuccess(t *testing.T) {
	store := newTestStore(t)
	session := store.Create("Invoice", "")

	updated, rejected, err := store.AddPages(session.ID, []PageUpload{
		{Filename: "page1.png", Data: testPNG(t, 100, 200)},
		{Filename: "notes.txt", Data: []byte("not an image")},
		{Filename: "page2.png", Data: testPNG(t, 300, 400)},
	})
	if err != nil {
		t.Fatalf("AddPages() error = %v", err)
	}

	if len(rejected) != 1 || rejected[0].Filename != "notes.txt" {
		t.Fatalf("expected notes.txt to be rejected, got %v", rejected)
	}
	if len(updated.Pages) != 2 {
		t.Fatalf("expected 2 accepted pages, got %d", len(updated.Pages))
	}
	if updated.Pages[0].Index != 0 || updated.Pages[1].Index != 1 {
		t.Errorf("expected contiguous indices [0,1], got [%d,%d]", updated.Pages[0].Index, updated.Pages[1].Index)
	}
	if updated.Pages[0].Metadata.Width != 100 || updated.Pages[0].Metadata.Height != 200 {
		t.Errorf("unexpected page metadata: %+v", updated.Pages[0].Metadata)
	}
}

func TestAddPagesUnknownSession(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.AddPages("missing", []PageUpload{{Filename: "a.png", Data: testPNG(t, 1, 1)}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemovePageReindexes(t *testing.T) {
	store := newTestStore(t)
	session := store.Create("Invoice", "")

	updated, _, err := store.AddPages(session.ID, []PageUpload{
		{Filename: "first.png", Data: testPNG(t, 10, 10)},
		{Filename: "second.png", Data: testPNG(t, 10, 10)},
		{Filename: "third.png", Data: testPNG(t, 10, 10)},
	})
	if err != nil {
		t.Fatalf("AddPages() error = %v", err)
	}

	updated, err = store.RemovePage(session.ID, updated.Pages[1].ID)
	if err != nil {
		t.Fatalf("RemovePage() error = %v", err)
	}

	if len(updated.Pages) != 2 {
		t.Fatalf("expected 2 pages after removal, got %d", len(updated.Pages))
	}
	if updated.Pages[0].Index != 0 || updated.Pages[1].Index != 1 {
		t.Errorf("expected reindexed [0,1], got [%d,%d]", updated.Pages[0].Index, updated.Pages[1].Index)
	}
	if updated.Pages[0].OriginalName != "first.png" || updated.Pages[1].OriginalName != "third.png" {
		t.Errorf("expected remaining pages first.png and third.png, got %s and %s",
			updated.Pages[0].OriginalName, updated.Pages[1].OriginalName)
	}
}

func TestReorderPages(t *testing.T) {
	store := newTestStore(t)
	session := store.Create("Invoice", "")

	updated, _, err := store.AddPages(session.ID, []PageUpload{
		{Filename: "a.png", Data: testPNG(t, 10, 10)},
		{Filename: "b.png", Data: testPNG(t, 10, 10)},
		{Filename: "c.png", Data: testPNG(t, 10, 10)},
	})
	if err != nil {
		t.Fatalf("AddPages() error = %v", err)
	}

	order := []string{updated.Pages[2].ID, updated.Pages[0].ID, updated.Pages[1].ID}
	updated, err = store.ReorderPages(session.ID, order)
	if err != nil {
		t.Fatalf("ReorderPages() error = %v", err)
	}

	wantNames := []string{"c.png", "a.png", "b.png"}
	for i, page := range updated.Pages {
		if page.OriginalName != wantNames[i] || page.Index != i {
			t.Errorf("page %d: got %s at index %d, want %s", i, page.OriginalName, page.Index, wantNames[i])
		}
	}
}

func TestSetErrorKeepsDocument(t *testing.T) {
	store := newTestStore(t)
	session := store.Create("Invoice", "")

	doc := document.New("eng", []document.Page{{Index: 0, Width: 10, Height: 10}})
	if _, err := store.SetDocument(session.ID, doc); err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}

	updated, err := store.SetError(session.ID, "engine exploded")
	if err != nil {
		t.Fatalf("SetError() error = %v", err)
	}

	if updated.Status != models.StatusError {
		t.Errorf("expected error status, got %s", updated.Status)
	}
	if updated.LastError != "engine exploded" {
		t.Errorf("unexpected last error: %q", updated.LastError)
	}
	if updated.Document == nil || !updated.Document.Equal(doc) {
		t.Error("a failed run must not destroy the previously recognized document")
	}
}

func TestSetDocumentClearsError(t *testing.T) {
	store := newTestStore(t)
	session := store.Create("Invoice", "")

	if _, err := store.SetError(session.ID, "first failure"); err != nil {
		t.Fatalf("SetError() error = %v", err)
	}
	updated, err := store.SetDocument(session.ID, document.New("eng", nil))
	if err != nil {
		t.Fatalf("SetDocument() error = %v", err)
	}

	if updated.Status != models.StatusReady || updated.LastError != "" {
		t.Errorf("expected ready status with cleared error, got %s / %q", updated.Status, updated.LastError)
	}
	if updated.LastRecognizedAt == nil {
		t.Error("expected last_recognized_at to be set")
	}
}

func TestListOrdersByUpdate(t *testing.T) {
	store := newTestStore(t)
	first := store.Create("first", "")
	store.Create("second", "")

	// Touch the first session so it becomes most recently updated.
	time.Sleep(5 * time.Millisecond)
	name := "first renamed"
	if _, err := store.Update(first.ID, UpdateRequest{Name: &name}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	summaries := store.List()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Name != "first renamed" {
		t.Errorf("expected most recently updated first, got %s", summaries[0].Name)
	}
}

func TestDeleteRemovesSession(t *testing.T) {
	store := newTestStore(t)
	session := store.Create("Invoice", "")

	if err := store.Delete(session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(session.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestShutdownFlushPersistsAutosaveOffSessions(t *testing.T) {
	repo := NewMemoryRepository()
	store, err := New(repo)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	session := store.Create("no autosave", "")
	off := false
	if _, err := store.Update(session.ID, UpdateRequest{AutosaveEnabled: &off}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, _, err := store.AddPages(session.ID, []PageUpload{{Filename: "a.png", Data: testPNG(t, 10, 10)}}); err != nil {
		t.Fatalf("AddPages() error = %v", err)
	}

	// The periodic flush honors the flag and skips the session.
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	interim, err := New(repo)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := interim.Get(session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("periodic flush must skip autosave-off sessions, got %v", err)
	}

	// The shutdown flush must not: every dirty session survives a restart.
	saver := NewAutosaver(store, time.Minute)
	saver.Start()
	saver.Stop()

	reloaded, err := New(repo)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	restored, err := reloaded.Get(session.ID)
	if err != nil {
		t.Fatalf("session lost across restart: %v", err)
	}
	if len(restored.Pages) != 1 {
		t.Errorf("expected 1 page after restart, got %d", len(restored.Pages))
	}
	if restored.AutosaveEnabled {
		t.Error("autosave flag did not survive the restart")
	}
}

func TestRemovePageDestroysStoredFile(t *testing.T) {
	repo := NewMemoryRepository()
	store, err := New(repo)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	session := store.Create("Invoice", "")

	updated, _, err := store.AddPages(session.ID, []PageUpload{
		{Filename: "keep.png", Data: testPNG(t, 10, 10)},
		{Filename: "drop.png", Data: testPNG(t, 10, 10)},
	})
	if err != nil {
		t.Fatalf("AddPages() error = %v", err)
	}
	target := updated.Pages[1]
	if _, err := repo.ReadPage(session.ID, target.Filename); err != nil {
		t.Fatalf("page file missing before removal: %v", err)
	}

	if _, err := store.RemovePage(session.ID, target.ID); err != nil {
		t.Fatalf("RemovePage() error = %v", err)
	}

	if _, err := repo.ReadPage(session.ID, target.Filename); err == nil {
		t.Error("stored file survived page removal")
	}
	if _, err := repo.ReadPage(session.ID, updated.Pages[0].Filename); err != nil {
		t.Errorf("unrelated page file lost: %v", err)
	}
}

func TestCrashedProcessingSessionResolvesToError(t *testing.T) {
	repo := NewMemoryRepository()
	stuck := &models.Session{
		ID:     "stuck",
		Name:   "stuck",
		Status: models.StatusProcessing,
	}
	if err := repo.Save(stuck); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	store, err := New(repo)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	session, err := store.Get("stuck")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if session.Status != models.StatusError {
		t.Errorf("processing session with no run must resolve to error, got %s", session.Status)
	}
}
