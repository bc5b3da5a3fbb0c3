package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoader(t *testing.T) {
	path := "./test.parquet"
	loader := NewLoader(path)

	if loader.datasetPath != path {
		t.Errorf("Expected path %s, got %s", path, loader.datasetPath)
	}
}

func TestLoadJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.jsonl")
	content := `{"id":"s1","image_path":"pages/s1.png","transcript":"hello world","language":"eng"}
{"id":"s2","image_path":"pages/s2.png","transcript":"second page","language":"eng"}

{"id":"s3","image_path":"pages/s3.png","transcript":"third","language":"rus"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}

	samples, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	if samples[0].ID != "s1" || samples[0].Transcript != "hello world" {
		t.Errorf("first sample = %+v", samples[0])
	}
	if samples[2].Language != "rus" {
		t.Errorf("third sample language = %q, want rus", samples[2].Language)
	}
	for _, s := range samples {
		if !s.Valid() {
			t.Errorf("sample %s reported invalid", s.ID)
		}
	}
}

func TestLoadSampleLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.jsonl")
	content := `{"id":"s1","image_path":"a.png","transcript":"a"}
{"id":"s2","image_path":"b.png","transcript":"b"}
{"id":"s3","image_path":"c.png","transcript":"c"}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}

	samples, err := NewLoader(path).LoadSample(2)
	if err != nil {
		t.Fatalf("LoadSample() failed: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("got %d samples, want 2", len(samples))
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := NewLoader("bench.csv").Load(); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestReadImageResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "pages"), 0755); err != nil {
		t.Fatalf("creating pages dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pages", "s1.png"), []byte("imagebytes"), 0644); err != nil {
		t.Fatalf("writing image: %v", err)
	}

	loader := NewLoader(filepath.Join(dir, "bench.jsonl"))
	data, err := loader.ReadImage(Sample{ID: "s1", ImagePath: "pages/s1.png"})
	if err != nil {
		t.Fatalf("ReadImage() failed: %v", err)
	}
	if string(data) != "imagebytes" {
		t.Errorf("image bytes = %q", data)
	}
}
