// Package tesseract backs the engine interface with a local Tesseract
// installation through gosseract. It is the only engine that reports real
// word-level geometry and confidence.
package tesseract

import (
	"context"
	"image"

	"github.com/otiai10/gosseract/v2"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
	"github.com/AleksandrSemykin/reflow-ocr/internal/engine"
)

type Engine struct {
	clientFactory func() *gosseract.Client
}

func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, page engine.PageImage, opts engine.Options) ([]document.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Wrap(e.Name(), "context finished", err)
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(page.Data); err != nil {
		return nil, engine.Wrap(e.Name(), "failed to set image", err)
	}
	if len(opts.Languages) > 0 {
		if err := client.SetLanguage(opts.Languages...); err != nil {
			return nil, engine.Wrap(e.Name(), "failed to set languages", err)
		}
	}

	paragraphs, err := client.GetBoundingBoxes(gosseract.RIL_PARA)
	if err != nil {
		return nil, engine.Wrap(e.Name(), "failed to read paragraph boxes", err)
	}
	lines, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, engine.Wrap(e.Name(), "failed to read line boxes", err)
	}

	return e.assemble(page, paragraphs, lines)
}

// assemble groups recognized lines under the paragraph whose box contains
// their center. Tesseract reports paragraphs and lines in reading order and
// the grouping preserves that order.
func (e *Engine) assemble(page engine.PageImage, paragraphs, lines []gosseract.BoundingBox) ([]document.Block, error) {
	pageBox := document.Box{Width: page.Width, Height: page.Height}
	if pageBox.Width <= 0 || pageBox.Height <= 0 {
		// Unknown dimensions; trust tesseract's own coordinates.
		pageBox = document.Box{Width: 1 << 30, Height: 1 << 30}
	}

	if len(paragraphs) == 0 {
		paragraphs = []gosseract.BoundingBox{{Box: boundsOf(lines)}}
	}

	blocks := make([]document.Block, 0, len(paragraphs))
	for _, para := range paragraphs {
		paraBox := clampBox(toBox(para), pageBox)
		var spans []document.Span
		for _, line := range lines {
			if !containsCenter(paraBox, toBox(line)) {
				continue
			}
			text := line.Word
			if text == "" {
				continue
			}
			span, err := document.NewSpan(text, confidence(line.Confidence), clampBox(toBox(line), paraBox))
			if err != nil {
				return nil, engine.Wrap(e.Name(), "invalid line geometry", err)
			}
			spans = append(spans, span)
		}
		if len(spans) == 0 {
			continue
		}
		block, err := document.NewBlock(document.BlockParagraph, paraBox, spans)
		if err != nil {
			return nil, engine.Wrap(e.Name(), "invalid paragraph geometry", err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func toBox(b gosseract.BoundingBox) document.Box {
	return document.Box{
		X:      b.Box.Min.X,
		Y:      b.Box.Min.Y,
		Width:  b.Box.Dx(),
		Height: b.Box.Dy(),
	}
}

func boundsOf(lines []gosseract.BoundingBox) (r image.Rectangle) {
	for i, line := range lines {
		if i == 0 {
			r = line.Box
			continue
		}
		r = r.Union(line.Box)
	}
	return r
}

// confidence converts tesseract's 0-100 score into [0,1].
func confidence(raw float64) float64 {
	c := raw / 100
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func clampBox(b, parent document.Box) document.Box {
	if b.X < parent.X {
		b.Width -= parent.X - b.X
		b.X = parent.X
	}
	if b.Y < parent.Y {
		b.Height -= parent.Y - b.Y
		b.Y = parent.Y
	}
	if b.Width < 0 {
		b.Width = 0
	}
	if b.Height < 0 {
		b.Height = 0
	}
	if b.X+b.Width > parent.X+parent.Width {
		b.Width = parent.X + parent.Width - b.X
	}
	if b.Y+b.Height > parent.Y+parent.Height {
		b.Height = parent.Y + parent.Height - b.Y
	}
	return b
}

func containsCenter(parent, child document.Box) bool {
	cx := child.X + child.Width/2
	cy := child.Y + child.Height/2
	return cx >= parent.X && cx <= parent.X+parent.Width &&
		cy >= parent.Y && cy <= parent.Y+parent.Height
}
