// Package document defines the recognized-content tree produced by the
// recognition pipeline and consumed by exporters: Document → Page → Block → Span.
package document

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BlockType classifies a recognized block of content.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockHeader    BlockType = "header"
	BlockFooter    BlockType = "footer"
	BlockTable     BlockType = "table"
	BlockList      BlockType = "list"
	BlockImage     BlockType = "image"
	BlockFigure    BlockType = "figure"
)

// Box is a bounding box in page-pixel coordinates, origin top-left.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether inner lies fully inside b.
func (b Box) Contains(inner Box) bool {
	return inner.X >= b.X && inner.Y >= b.Y &&
		inner.X+inner.Width <= b.X+b.Width &&
		inner.Y+inner.Height <= b.Y+b.Height
}

// Span is a run of recognized text with its confidence and position.
type Span struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Block is an ordered group of spans. Span order is reading order as produced
// by the engine; the model preserves it and never re-sorts spatially.
type Block struct {
	ID    string    `json:"id"`
	Type  BlockType `json:"type"`
	Box   Box       `json:"box"`
	Spans []Span    `json:"spans"`
}

// Page is one page of recognized content.
type Page struct {
	Index  int     `json:"index"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Blocks []Block `json:"blocks"`
}

// Document is the full recognition output for a session. It is replaced
// wholesale on every successful run, never merged.
type Document struct {
	CreatedAt    time.Time `json:"created_at"`
	LanguageHint string    `json:"language_hint,omitempty"`
	Pages        []Page    `json:"pages"`
}

// ValidationError reports an invalid geometry or confidence value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validBox(field string, b Box) error {
	if b.Width < 0 || b.Height < 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("negative dimensions %dx%d", b.Width, b.Height)}
	}
	if b.X < 0 || b.Y < 0 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("negative origin (%d,%d)", b.X, b.Y)}
	}
	return nil
}

// NewSpan validates geometry and confidence before constructing a span.
func NewSpan(text string, confidence float64, box Box) (Span, error) {
	if err := validBox("span box", box); err != nil {
		return Span{}, err
	}
	if confidence < 0 || confidence > 1 {
		return Span{}, &ValidationError{Field: "span confidence", Reason: fmt.Sprintf("%g outside [0,1]", confidence)}
	}
	return Span{Text: text, Confidence: confidence, Box: box}, nil
}

// NewBlock validates the block geometry and every span against it. Spans must
// fit inside the block box.
func NewBlock(blockType BlockType, box Box, spans []Span) (Block, error) {
	if err := validBox("block box", box); err != nil {
		return Block{}, err
	}
	for i, span := range spans {
		if err := validBox("span box", span.Box); err != nil {
			return Block{}, err
		}
		if span.Confidence < 0 || span.Confidence > 1 {
			return Block{}, &ValidationError{Field: "span confidence", Reason: fmt.Sprintf("%g outside [0,1]", span.Confidence)}
		}
		if !box.Contains(span.Box) {
			return Block{}, &ValidationError{Field: "span box", Reason: fmt.Sprintf("span %d exceeds block bounds", i)}
		}
	}
	return Block{
		ID:    uuid.NewString(),
		Type:  blockType,
		Box:   box,
		Spans: spans,
	}, nil
}

// New builds a document from already-assembled pages.
func New(languageHint string, pages []Page) *Document {
	return &Document{
		CreatedAt:    time.Now().UTC(),
		LanguageHint: languageHint,
		Pages:        pages,
	}
}

// Validate checks the whole tree: page dimensions, block geometry, and block
// containment within page bounds.
func (d *Document) Validate() error {
	for _, page := range d.Pages {
		if page.Width < 0 || page.Height < 0 {
			return &ValidationError{Field: "page", Reason: fmt.Sprintf("page %d has negative dimensions", page.Index)}
		}
		pageBox := Box{Width: page.Width, Height: page.Height}
		for _, block := range page.Blocks {
			if err := validBox("block box", block.Box); err != nil {
				return err
			}
			if !pageBox.Contains(block.Box) {
				return &ValidationError{Field: "block box", Reason: fmt.Sprintf("block %s exceeds page %d bounds", block.ID, page.Index)}
			}
		}
	}
	return nil
}

// Text flattens all span text of a block into newline-separated lines.
func (b Block) Text() string {
	var out string
	for i, span := range b.Spans {
		if i > 0 {
			out += "\n"
		}
		out += span.Text
	}
	return out
}

// Equal reports whether two documents carry the same recognized content.
// Creation timestamps are ignored so autosave change detection does not see
// every run as a change.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.LanguageHint != other.LanguageHint || len(d.Pages) != len(other.Pages) {
		return false
	}
	for i := range d.Pages {
		if !pageEqual(d.Pages[i], other.Pages[i]) {
			return false
		}
	}
	return true
}

func pageEqual(a, b Page) bool {
	if a.Index != b.Index || a.Width != b.Width || a.Height != b.Height || len(a.Blocks) != len(b.Blocks) {
		return false
	}
	for i := range a.Blocks {
		if !blockEqual(a.Blocks[i], b.Blocks[i]) {
			return false
		}
	}
	return true
}

func blockEqual(a, b Block) bool {
	if a.Type != b.Type || a.Box != b.Box || len(a.Spans) != len(b.Spans) {
		return false
	}
	for i := range a.Spans {
		if a.Spans[i] != b.Spans[i] {
			return false
		}
	}
	return true
}
