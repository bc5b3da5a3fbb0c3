package export

import (
	"bytes"
	"fmt"

	"github.com/gomutex/godocx"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// Docx renders the document as OOXML: a level-2 heading per page, one
// paragraph per block, header blocks in bold.
type Docx struct{}

func (Docx) Format() Format { return FormatDocx }

func (Docx) Export(doc *document.Document, req Request) (*Result, error) {
	out, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("creating docx: %w", err)
	}

	for _, page := range doc.Pages {
		if _, err := out.AddHeading(fmt.Sprintf("Page %d", page.Index+1), 2); err != nil {
			return nil, fmt.Errorf("adding page heading: %w", err)
		}
		for _, block := range page.Blocks {
			text := blockText(block)
			if text == "" {
				continue
			}
			para := out.AddEmptyParagraph()
			run := para.AddText(text)
			if block.Type == document.BlockHeader || block.Type == document.BlockHeading {
				run.Bold(true)
			}
		}
	}

	var buf bytes.Buffer
	if err := out.Write(&buf); err != nil {
		return nil, fmt.Errorf("rendering docx: %w", err)
	}
	return &Result{
		Filename:  filenameBase(req.FilenameHint) + ".docx",
		MediaType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Content:   buf.Bytes(),
	}, nil
}
