// Package engine defines the recognition-engine boundary the pipeline calls
// through. Implementations turn one page image into ordered document blocks;
// everything past this interface is a black box to the pipeline.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// PageImage is one page submitted for recognition.
type PageImage struct {
	// Data is the encoded image payload.
	Data []byte
	// MimeType declares the image content type, e.g. image/png.
	MimeType string
	// Width and Height are the pixel dimensions from upload-time decoding.
	Width  int
	Height int
	// Index is the zero-based page position within the session.
	Index int
}

// Options carries recognition hints.
type Options struct {
	// Languages holds engine language hints, e.g. "eng" or "rus".
	Languages []string
}

// Engine recognizes a single page. Implementations must return blocks in
// reading order and may be invoked concurrently across sessions.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, page PageImage, opts Options) ([]document.Block, error)
}

// Error is the uniform failure type for engine calls. Timeout marks
// deadline-caused failures so callers can report them distinctly.
type Error struct {
	Engine  string
	Detail  string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	kind := "engine error"
	if e.Timeout {
		kind = "engine timeout"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", kind, e.Engine, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", kind, e.Engine, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap converts an arbitrary failure into an *Error, detecting timeouts.
func Wrap(engineName, detail string, err error) *Error {
	return &Error{
		Engine:  engineName,
		Detail:  detail,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// BlocksFromText builds paragraph blocks from plain transcription output.
// Text-only engines (vision LLMs, the fallback) have no geometry, so lines
// are laid out top to bottom inside the page bounds with a synthetic
// per-line box and the given confidence.
func BlocksFromText(text string, page PageImage, confidence float64) ([]document.Block, error) {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil, nil
	}

	pageWidth := page.Width
	pageHeight := page.Height
	if pageWidth <= 0 {
		pageWidth = 1000
	}
	if pageHeight <= 0 {
		pageHeight = 1400
	}

	totalLines := 0
	for _, lines := range paragraphs {
		totalLines += len(lines)
	}
	lineHeight := pageHeight / (totalLines + len(paragraphs))
	if lineHeight < 1 {
		lineHeight = 1
	}

	blocks := make([]document.Block, 0, len(paragraphs))
	y := 0
	for _, lines := range paragraphs {
		blockTop := clamp(y, 0, pageHeight-1)
		spans := make([]document.Span, 0, len(lines))
		for _, line := range lines {
			top := clamp(y, 0, pageHeight-lineHeight)
			span, err := document.NewSpan(line, confidence, document.Box{
				X:      0,
				Y:      top,
				Width:  pageWidth,
				Height: lineHeight,
			})
			if err != nil {
				return nil, err
			}
			spans = append(spans, span)
			y += lineHeight
		}
		blockHeight := clamp(y-blockTop, lineHeight, pageHeight-blockTop)
		block, err := document.NewBlock(document.BlockParagraph, document.Box{
			X:      0,
			Y:      blockTop,
			Width:  pageWidth,
			Height: blockHeight,
		}, spans)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
		y += lineHeight // paragraph gap
	}
	return blocks, nil
}

func splitParagraphs(text string) [][]string {
	var paragraphs [][]string
	var current []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
