package export

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// PDF renders the document with one PDF page per recognized page. Text flows
// line by line; long spans wrap within the printable width.
type PDF struct{}

func (PDF) Format() Format { return FormatPDF }

func (PDF) Export(doc *document.Document, req Request) (*Result, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)

	if len(doc.Pages) == 0 {
		pdf.AddPage()
	}
	for _, page := range doc.Pages {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", page.Index+1), "", 1, "L", false, 0, "")
		pdf.Ln(2)
		for _, block := range page.Blocks {
			text := blockText(block)
			if text == "" {
				continue
			}
			style := ""
			if block.Type == document.BlockHeader || block.Type == document.BlockHeading {
				style = "B"
			}
			pdf.SetFont("Helvetica", style, 10)
			pdf.MultiCell(0, 5, text, "", "L", false)
			pdf.Ln(2)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return &Result{
		Filename:  filenameBase(req.FilenameHint) + ".pdf",
		MediaType: "application/pdf",
		Content:   buf.Bytes(),
	}, nil
}
