package router

import (
	"testing"

	"askgpt/internal/llm"
)

func TestResolveImageExplicitWins(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "here", Image: "historical"},
	}
	if got := ResolveImage("explicit", history); got != "explicit" {
		t.Fatalf("explicit image should win, got %q", got)
	}
}

func TestResolveImagePicksMostRecentUserImage(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "first", Image: "older"},
		{Role: "assistant", Content: "done"},
		{Role: "user", Content: "second", Image: "newer"},
		{Role: "user", Content: "no image here"},
	}
	if got := ResolveImage("", history); got != "newer" {
		t.Fatalf("expected most recent user image, got %q", got)
	}
}

// Assistant-generated images are never picked, even when they are more
// recent than the user's upload. Editing should target what the user
// sent, not a generated result.
func TestResolveImageSkipsAssistantImages(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "my photo", Image: "user-upload"},
		{Role: "assistant", Content: "here you go", Image: "generated"},
	}
	if got := ResolveImage("", history); got != "user-upload" {
		t.Fatalf("expected user upload, got %q", got)
	}
}

func TestResolveImageNoneAvailable(t *testing.T) {
	history := []llm.Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi", Image: "generated"},
	}
	if got := ResolveImage("", history); got != "" {
		t.Fatalf("expected no image, got %q", got)
	}
	if got := ResolveImage("", nil); got != "" {
		t.Fatalf("expected no image for empty history, got %q", got)
	}
}
