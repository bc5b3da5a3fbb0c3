package export

import (
	"fmt"
	"strings"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// Markdown renders the document as plain Markdown: a top-level title, one
// second-level heading per page, header blocks emphasized.
type Markdown struct{}

func (Markdown) Format() Format { return FormatMarkdown }

func (Markdown) Export(doc *document.Document, req Request) (*Result, error) {
	content := renderMarkdown(doc)
	return &Result{
		Filename:  filenameBase(req.FilenameHint) + ".md",
		MediaType: "text/markdown; charset=utf-8",
		Content:   []byte(content),
	}, nil
}

func renderMarkdown(doc *document.Document) string {
	var b strings.Builder
	b.WriteString("# Recognized Document\n\n")
	for _, page := range doc.Pages {
		fmt.Fprintf(&b, "## Page %d\n", page.Index+1)
		for _, block := range page.Blocks {
			text := blockText(block)
			if text == "" {
				continue
			}
			switch block.Type {
			case document.BlockHeader, document.BlockHeading:
				fmt.Fprintf(&b, "**%s**\n", text)
			default:
				b.WriteString(text)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
