package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"askgpt/internal/imaging"
	"askgpt/internal/intent"
	"askgpt/internal/llm"
)

// Capability labels, shown to the user as the "model used". Distinct
// from intent labels: these are display names for observability.
const (
	LabelAutomation = "System Automation"
	LabelImageGen   = "Google Imagen 3"
	LabelProcessor  = "Image Processor"
	LabelSystem     = "System"
	LabelVision     = "GPT-4o Vision"
	LabelCoding     = "Gemini 2.5 Pro"
	LabelChat       = "GPT-4o-mini"
)

const systemPrompt = "You are a helpful AI assistant."

// Result is the normalized output of exactly one capability handler.
// Image is never present without Text.
type Result struct {
	Text  string
	Label string
	Image string
}

// Executor runs a natural-language automation command. It never fails
// outward: internal errors come back as descriptive result text.
type Executor interface {
	Execute(ctx context.Context, command string) string
}

// Remover strips the background from base64-encoded image bytes.
type Remover interface {
	RemoveBackground(ctx context.Context, imageB64 string) (string, error)
}

// Router invokes exactly one capability per classified intent and
// normalizes its output. No error originating in a handler escapes:
// every branch terminates in a well-formed Result.
type Router struct {
	automation Executor
	generator  llm.ImageGenerator
	remover    Remover

	chatClient   llm.Client
	codingClient llm.Client
	visionClient llm.Client

	timeout time.Duration
	log     *zap.Logger
}

func New(
	automation Executor,
	generator llm.ImageGenerator,
	remover Remover,
	chatClient, codingClient, visionClient llm.Client,
	timeout time.Duration,
	log *zap.Logger,
) *Router {
	return &Router{
		automation:   automation,
		generator:    generator,
		remover:      remover,
		chatClient:   chatClient,
		codingClient: codingClient,
		visionClient: visionClient,
		timeout:      timeout,
		log:          log,
	}
}

// Dispatch routes one turn to its capability. history is the trailing
// window, oldest to newest.
func (r *Router) Dispatch(ctx context.Context, it intent.Intent, message, image string, history []llm.Message) Result {
	switch it {
	case intent.PersonalAutomation:
		return r.dispatchAutomation(ctx, message)
	case intent.ImageGeneration:
		return r.dispatchImageGeneration(ctx, message)
	case intent.ImageManipulation:
		return r.dispatchImageManipulation(ctx, message, image, history)
	case intent.VisionAnalysis:
		return r.completion(ctx, r.visionClient, LabelVision, message, image, history)
	case intent.ResearchCoding:
		return r.completion(ctx, r.codingClient, LabelCoding, message, "", history)
	default:
		return r.completion(ctx, r.chatClient, LabelChat, message, "", history)
	}
}

func (r *Router) dispatchAutomation(ctx context.Context, message string) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return Result{Text: r.automation.Execute(ctx, message), Label: LabelAutomation}
}

func (r *Router) dispatchImageGeneration(ctx context.Context, message string) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	imageB64, err := r.generator.GenerateImage(ctx, message)
	if err != nil {
		r.log.Warn("image generation failed", zap.Error(err))
		return Result{Text: "Sorry, I couldn't generate the image at this time.", Label: LabelImageGen}
	}
	return Result{
		Text:  fmt.Sprintf("Here is the generated image for: '%s'", message),
		Label: LabelImageGen,
		Image: imageB64,
	}
}

// Words that select removal over replacement once a manipulation turn
// has a working image.
var removalActionWords = []string{"remove", "delete", "transparent", "no background"}

func (r *Router) dispatchImageManipulation(ctx context.Context, message, image string, history []llm.Message) Result {
	target := ResolveImage(image, history)
	if target == "" {
		return Result{
			Text:  "Please upload an image or ensure there is one in our recent chat history to modify.",
			Label: LabelSystem,
		}
	}

	msg := strings.ToLower(message)
	wantsRemoval := false
	for _, w := range removalActionWords {
		if strings.Contains(msg, w) {
			wantsRemoval = true
			break
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		processed string
		taskDesc  string
		err       error
	)
	if wantsRemoval {
		processed, err = r.remover.RemoveBackground(ctx, target)
		taskDesc = "background removed"
	} else {
		processed, err = r.replaceBackground(ctx, target, backgroundPrompt(message))
		taskDesc = "background changed"
	}
	if err != nil {
		r.log.Warn("image manipulation failed", zap.String("task", taskDesc), zap.Error(err))
		return Result{Text: "Failed to process image.", Label: LabelSystem}
	}
	return Result{
		Text:  fmt.Sprintf("Here is your image with the %s.", taskDesc),
		Label: LabelProcessor,
		Image: processed,
	}
}

// replaceBackground cuts the subject out, generates a fresh background
// from the prompt, and composites the subject over it.
func (r *Router) replaceBackground(ctx context.Context, imageB64, prompt string) (string, error) {
	foreground, err := r.remover.RemoveBackground(ctx, imageB64)
	if err != nil {
		return "", fmt.Errorf("cut out foreground: %w", err)
	}
	background, err := r.generator.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate background: %w", err)
	}
	return imaging.Composite(foreground, background)
}

// backgroundPrompt derives the generation prompt by stripping the
// command phrasing, leaving the background description.
func backgroundPrompt(message string) string {
	p := strings.ReplaceAll(message, "change background", "")
	p = strings.ReplaceAll(p, "replace background", "")
	p = strings.ReplaceAll(p, "to a", "")
	return strings.TrimSpace(p)
}

func (r *Router) completion(ctx context.Context, client llm.Client, label, message, image string, history []llm.Message) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	messages := buildMessages(message, image, history)
	resp, err := client.Generate(ctx, messages)
	if err != nil {
		r.log.Warn("completion failed", zap.String("capability", label), zap.Error(err))
		return Result{Text: "Sorry, I encountered an error generating the text.", Label: label}
	}
	return Result{Text: resp.Content, Label: label}
}

// buildMessages assembles the prompt: system preamble, trailing history
// (text only), then the current turn. Historical images are not re-sent.
func buildMessages(message, image string, history []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, h := range history {
		role := "assistant"
		if h.Role == "user" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: h.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: message, Image: image})
	return messages
}
