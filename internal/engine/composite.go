package engine

import (
	"context"
	"log/slog"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// Composite tries engines in order and returns the first successful result.
// Fusing results from multiple backends and logging discrepancies between
// them is this adapter's concern; the pipeline only ever sees one merged
// result per page.
type Composite struct {
	engines []Engine
}

func NewComposite(engines ...Engine) *Composite {
	return &Composite{engines: engines}
}

func (c *Composite) Name() string { return "composite" }

func (c *Composite) Recognize(ctx context.Context, page PageImage, opts Options) ([]document.Block, error) {
	if len(c.engines) == 0 {
		return nil, &Error{Engine: c.Name(), Detail: "no engines configured"}
	}

	var lastErr error
	for i, eng := range c.engines {
		blocks, err := eng.Recognize(ctx, page, opts)
		if err == nil {
			if i > 0 {
				slog.Warn("Primary engine failed, used fallback result",
					"page", page.Index, "engine", eng.Name(), "primary_err", lastErr)
			}
			return blocks, nil
		}
		slog.Warn("Engine failed, trying next", "engine", eng.Name(), "page", page.Index, "err", err)
		lastErr = err
		// A cancelled or expired context fails every remaining engine the
		// same way; stop instead of burning through the chain.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, Wrap(c.Name(), "all engines failed", lastErr)
}
