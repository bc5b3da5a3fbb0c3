package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

// geminiConfidence is assigned to spans transcribed by the vision model,
// which reports no per-word scores.
const geminiConfidence = 0.85

// Gemini transcribes page images with a Google Gemini vision model.
type Gemini struct {
	model string
}

func NewGemini(model string) *Gemini {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Recognize(ctx context.Context, page PageImage, opts Options) ([]document.Block, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, &Error{Engine: g.Name(), Detail: "GEMINI_API_KEY environment variable not set"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, Wrap(g.Name(), "failed to create gemini client", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.model)
	model.SetTemperature(0)

	resp, err := model.GenerateContent(ctx,
		genai.ImageData(imageSubtype(page.MimeType), page.Data),
		genai.Text(transcriptionPrompt(opts.Languages)),
	)
	if err != nil {
		return nil, Wrap(g.Name(), "failed to generate content", err)
	}

	if len(resp.Candidates) == 0 {
		return nil, &Error{Engine: g.Name(), Detail: "no candidates returned"}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, &Error{Engine: g.Name(), Detail: "empty content returned"}
	}
	text, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return nil, &Error{Engine: g.Name(), Detail: fmt.Sprintf("unexpected response part %T", candidate.Content.Parts[0])}
	}

	blocks, err := BlocksFromText(string(text), page, geminiConfidence)
	if err != nil {
		return nil, Wrap(g.Name(), "invalid transcription layout", err)
	}
	return blocks, nil
}

func imageSubtype(mimeType string) string {
	if sub, ok := strings.CutPrefix(mimeType, "image/"); ok {
		return sub
	}
	return "png"
}

func transcriptionPrompt(languages []string) string {
	hint := ""
	if len(languages) > 0 {
		hint = " The text is primarily in: " + strings.Join(languages, ", ") + "."
	}
	return `You are performing OCR on a scanned document page.` + hint + `

Transcribe ALL visible text exactly as it appears, preserving line breaks,
capitalization, and punctuation. Separate paragraphs with a blank line.
Use [?] for illegible portions.

Output ONLY the transcribed text with no commentary.`
}
