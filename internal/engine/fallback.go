package engine

import (
	"context"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// Fallback produces a placeholder block when no recognition backend is
// configured. It keeps the pipeline and exporters exercisable on machines
// without Tesseract or API credentials.
type Fallback struct{}

func NewFallback() *Fallback { return &Fallback{} }

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Recognize(ctx context.Context, page PageImage, opts Options) ([]document.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap(f.Name(), "context finished", err)
	}
	return BlocksFromText(
		"Recognition backend unavailable. Configure Tesseract, Gemini, or Ollama to enable OCR.",
		page,
		0,
	)
}
