package imaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemovalClient calls a rembg-compatible background removal service:
// raw image bytes in, PNG with transparent background out.
type RemovalClient struct {
	http *http.Client
	url  string
}

func NewRemovalClient(url string, timeout time.Duration) *RemovalClient {
	return &RemovalClient{
		http: &http.Client{Timeout: timeout},
		url:  url,
	}
}

// RemoveBackground accepts and returns base64-encoded image bytes.
func (c *RemovalClient) RemoveBackground(ctx context.Context, imageB64 string) (string, error) {
	raw, err := decode(imageB64)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build removal request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call removal service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("removal service returned status %d", resp.StatusCode)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read removal response: %w", err)
	}
	return encode(out), nil
}
