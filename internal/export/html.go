package export

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`

// HTML renders the document by converting the Markdown form. The result is a
// standalone page, not a fragment.
type HTML struct{}

func (HTML) Format() Format { return FormatHTML }

func (HTML) Export(doc *document.Document, req Request) (*Result, error) {
	var body bytes.Buffer
	if err := goldmark.New().Convert([]byte(renderMarkdown(doc)), &body); err != nil {
		return nil, fmt.Errorf("rendering html: %w", err)
	}
	content := fmt.Sprintf(htmlShell, filenameBase(req.FilenameHint), body.String())
	return &Result{
		Filename:  filenameBase(req.FilenameHint) + ".html",
		MediaType: "text/html; charset=utf-8",
		Content:   []byte(content),
	}, nil
}
