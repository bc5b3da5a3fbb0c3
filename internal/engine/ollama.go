package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/AleksandrSemykin/reflow-ocr/internal/document"
)

const ollamaConfidence = 0.75

// Ollama transcribes page images with a locally hosted vision model.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

func NewOllama(host, model string) *Ollama {
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}
	return &Ollama{
		host:   host,
		model:  model,
		client: &http.Client{},
	}
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Recognize(ctx context.Context, page PageImage, opts Options) ([]document.Block, error) {
	requestBody := map[string]any{
		"model":  o.model,
		"prompt": transcriptionPrompt(opts.Languages),
		"images": []string{base64.StdEncoding.EncodeToString(page.Data)},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.0,
		},
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, Wrap(o.Name(), "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, Wrap(o.Name(), "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, Wrap(o.Name(), "failed to call ollama API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &Error{
			Engine: o.Name(),
			Detail: fmt.Sprintf("ollama API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, Wrap(o.Name(), "failed to decode response", err)
	}

	slog.Info("Extracted OCR text", "engine", "ollama", "page", page.Index, "length", len(ollamaResp.Response))

	blocks, err := BlocksFromText(ollamaResp.Response, page, ollamaConfidence)
	if err != nil {
		return nil, Wrap(o.Name(), "invalid transcription layout", err)
	}
	return blocks, nil
}
