package llm

import "context"

type Message struct {
	Role    string
	Content string
	// Image is an optional base64-encoded attachment. Only vision-capable
	// clients look at it; text-only clients ignore it.
	Image string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}

// ImageGenerator synthesizes an image from a text prompt and returns it
// as base64-encoded bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}
