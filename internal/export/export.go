// Package export renders a recognized document into downloadable artifacts.
// Exporters are looked up by format through a registry; each one is
// stateless and safe for concurrent use.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// Format names an export target.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
	FormatHTML     Format = "html"
)

var (
	// ErrNoDocument is returned when a session has not been recognized yet.
	ErrNoDocument = errors.New("session has no recognized document")
)

// Error reports a failed rendering, timeouts included.
type Error struct {
	Format  Format
	Detail  string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("export %s failed: %s: %v", e.Format, e.Detail, e.Err)
	}
	return fmt.Sprintf("export %s failed: %s", e.Format, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// UnsupportedFormatError reports a format the registry does not know.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format: %s", e.Format)
}

// Request carries export parameters.
type Request struct {
	Format Format
	// FilenameHint is the base name for the artifact, typically the session
	// name. It is sanitized before use.
	FilenameHint string
}

// Result is one rendered artifact.
type Result struct {
	Filename  string
	MediaType string
	Content   []byte
}

// Exporter renders one document into one format.
type Exporter interface {
	Format() Format
	Export(doc *document.Document, req Request) (*Result, error)
}

// Registry resolves exporters by format.
type Registry struct {
	exporters map[Format]Exporter
}

// NewRegistry builds a registry over the default exporters.
func NewRegistry() *Registry {
	r := &Registry{exporters: make(map[Format]Exporter)}
	for _, e := range []Exporter{
		&Markdown{},
		&PDF{},
		&Docx{},
		&HTML{},
	} {
		r.exporters[e.Format()] = e
	}
	return r
}

// Register adds or replaces an exporter.
func (r *Registry) Register(e Exporter) {
	r.exporters[e.Format()] = e
}

// Formats lists the registered formats.
func (r *Registry) Formats() []Format {
	formats := make([]Format, 0, len(r.exporters))
	for f := range r.exporters {
		formats = append(formats, f)
	}
	return formats
}

// Export renders the document in the requested format.
func (r *Registry) Export(doc *document.Document, req Request) (*Result, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}
	exporter, ok := r.exporters[req.Format]
	if !ok {
		return nil, &UnsupportedFormatError{Format: req.Format}
	}
	result, err := exporter.Export(doc, req)
	if err != nil {
		var exportErr *Error
		if errors.As(err, &exportErr) {
			return nil, err
		}
		return nil, &Error{Format: req.Format, Detail: "rendering failed", Err: err}
	}
	return result, nil
}

// ExportWithTimeout bounds a rendering. A renderer exceeding the timeout is
// abandoned and reported as a timed-out Error; its goroutine finishes in the
// background.
func (r *Registry) ExportWithTimeout(doc *document.Document, req Request, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return r.Export(doc, req)
	}

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := r.Export(doc, req)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-time.After(timeout):
		return nil, &Error{Format: req.Format, Detail: fmt.Sprintf("timed out after %s", timeout), Timeout: true}
	}
}

// filenameBase sanitizes the hint into something safe for a Content-
// Disposition filename.
func filenameBase(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "document"
	}
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		return "document"
	}
	return out
}

// blockText joins a block's span texts with newlines, skipping empties.
func blockText(block document.Block) string {
	parts := make([]string, 0, len(block.Spans))
	for _, span := range block.Spans {
		if span.Text != "" {
			parts = append(parts, span.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
