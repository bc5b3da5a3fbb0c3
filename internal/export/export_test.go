package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

func testDocument(t *testing.T) *document.Document {
	t.Helper()
	heading, err := document.NewSpan("Invoice #42", 0.95, document.Box{X: 10, Y: 10, Width: 400, Height: 30})
	if err != nil {
		t.Fatalf("building span: %v", err)
	}
	headerBlock, err := document.NewBlock(document.BlockHeader, document.Box{X: 10, Y: 10, Width: 400, Height: 30}, []document.Span{heading})
	if err != nil {
		t.Fatalf("building block: %v", err)
	}
	body, err := document.NewSpan("Total due: 120.00", 0.9, document.Box{X: 10, Y: 60, Width: 400, Height: 20})
	if err != nil {
		t.Fatalf("building span: %v", err)
	}
	bodyBlock, err := document.NewBlock(document.BlockParagraph, document.Box{X: 10, Y: 60, Width: 400, Height: 20}, []document.Span{body})
	if err != nil {
		t.Fatalf("building block: %v", err)
	}
	return document.New("eng", []document.Page{
		{Index: 0, Width: 500, Height: 700, Blocks: []document.Block{headerBlock, bodyBlock}},
		{Index: 1, Width: 500, Height: 700},
	})
}

func TestMarkdownExport(t *testing.T) {
	res, err := NewRegistry().Export(testDocument(t), Request{Format: FormatMarkdown, FilenameHint: "My Invoice"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Filename != "My-Invoice.md" {
		t.Errorf("filename = %q, want My-Invoice.md", res.Filename)
	}
	if !strings.HasPrefix(res.MediaType, "text/markdown") {
		t.Errorf("media type = %q", res.MediaType)
	}
	content := string(res.Content)
	for _, want := range []string{"# Recognized Document", "## Page 1", "## Page 2", "**Invoice #42**", "Total due: 120.00"} {
		if !strings.Contains(content, want) {
			t.Errorf("markdown missing %q:\n%s", want, content)
		}
	}
}

func TestHTMLExport(t *testing.T) {
	res, err := NewRegistry().Export(testDocument(t), Request{Format: FormatHTML, FilenameHint: "invoice"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	content := string(res.Content)
	for _, want := range []string{"<!DOCTYPE html>", "<h1>Recognized Document</h1>", "<h2>Page 1</h2>", "Invoice #42"} {
		if !strings.Contains(content, want) {
			t.Errorf("html missing %q:\n%s", want, content)
		}
	}
	if res.Filename != "invoice.html" {
		t.Errorf("filename = %q", res.Filename)
	}
}

func TestPDFExport(t *testing.T) {
	res, err := NewRegistry().Export(testDocument(t), Request{Format: FormatPDF, FilenameHint: "invoice"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Filename != "invoice.pdf" || res.MediaType != "application/pdf" {
		t.Errorf("filename/media = %q %q", res.Filename, res.MediaType)
	}
	if !bytes.HasPrefix(res.Content, []byte("%PDF")) {
		t.Error("content does not start with a PDF header")
	}
}

func TestDocxExport(t *testing.T) {
	res, err := NewRegistry().Export(testDocument(t), Request{Format: FormatDocx, FilenameHint: "invoice"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Filename != "invoice.docx" {
		t.Errorf("filename = %q", res.Filename)
	}
	// OOXML is a zip container.
	if !bytes.HasPrefix(res.Content, []byte("PK")) {
		t.Error("content is not a zip container")
	}
}

func TestRegistryErrors(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Export(nil, Request{Format: FormatMarkdown}); !errors.Is(err, ErrNoDocument) {
		t.Errorf("nil document err = %v, want ErrNoDocument", err)
	}

	_, err := registry.Export(testDocument(t), Request{Format: "xlsx"})
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %v, want UnsupportedFormatError", err)
	}
	if unsupported.Format != "xlsx" {
		t.Errorf("reported format = %q", unsupported.Format)
	}
}

type slowExporter struct {
	delay time.Duration
}

func (slowExporter) Format() Format { return Format("slow") }

func (s slowExporter) Export(doc *document.Document, req Request) (*Result, error) {
	time.Sleep(s.delay)
	return &Result{Filename: "slow.bin", MediaType: "application/octet-stream", Content: []byte("x")}, nil
}

func TestExportWithTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(slowExporter{delay: 200 * time.Millisecond})

	_, err := registry.ExportWithTimeout(testDocument(t), Request{Format: "slow"}, 20*time.Millisecond)
	var exportErr *Error
	if !errors.As(err, &exportErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if !exportErr.Timeout {
		t.Error("timeout not flagged")
	}

	res, err := registry.ExportWithTimeout(testDocument(t), Request{Format: "slow"}, time.Second)
	if err != nil {
		t.Fatalf("fast path err = %v", err)
	}
	if res.Filename != "slow.bin" {
		t.Errorf("filename = %q", res.Filename)
	}
}

func TestFilenameBase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"My Invoice", "My-Invoice"},
		{"", "document"},
		{"  ", "document"},
		{"report2024.final", "report2024.final"},
		{"///", "document"},
		{"naïve scan", "nave-scan"},
	}
	for _, tt := range tests {
		if got := filenameBase(tt.in); got != tt.want {
			t.Errorf("filenameBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
