// Package images retrieves page images from remote URLs for upload-by-URL.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxFetchBytes caps a downloaded page image at 20MB.
const maxFetchBytes = 20 * 1024 * 1024

// Fetcher downloads page images over HTTP.
type Fetcher struct {
	HTTPClient *http.Client
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch downloads the image at url and returns its bytes plus the reported
// content type. Non-image responses are rejected up front so obviously wrong
// URLs fail here instead of at decode time.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "application/octet-stream") {
		return nil, "", fmt.Errorf("URL returned %s, not an image", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > maxFetchBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxFetchBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image URL returned an empty body")
	}
	return data, contentType, nil
}
