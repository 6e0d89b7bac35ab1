package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// OpenAIImageClient generates images through the images API of an
// OpenAI-compatible provider.
type OpenAIImageClient struct {
	client *openai.Client
	http   *http.Client
	model  string
	size   string
}

func NewOpenAIImages(apiKey, baseURL, model, size string) *OpenAIImageClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIImageClient{
		client: openai.NewClientWithConfig(config),
		http:   http.DefaultClient,
		model:  model,
		size:   size,
	}
}

func (c *OpenAIImageClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Model:          c.model,
		Prompt:         prompt,
		Size:           c.size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("image generation returned no data")
	}

	data := resp.Data[0]
	if data.B64JSON != "" {
		return repairPadding(data.B64JSON), nil
	}
	if data.URL != "" {
		return c.fetchAsBase64(ctx, data.URL)
	}
	return "", fmt.Errorf("unknown image response format")
}

// Some providers return URLs even when b64_json is requested.
func (c *OpenAIImageClient) fetchAsBase64(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image fetch request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch generated image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch generated image: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generated image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// repairPadding fixes base64 payloads that arrive without trailing '='.
func repairPadding(b64 string) string {
	if m := len(b64) % 4; m != 0 {
		for i := 0; i < 4-m; i++ {
			b64 += "="
		}
	}
	return b64
}
