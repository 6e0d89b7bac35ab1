package intent

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"askgpt/internal/llm"
)

// Keyword sets for the rule steps. Matched case-insensitively as
// substrings.
var (
	automationPhrases = []string{
		"mail to", "send email", "open vs code", "open app", "launch", "open file", "run command",
	}
	removalPhrases = []string{
		"remove background", "delete background", "transparent background", "no background", "remove the background",
	}
	replacePhrases = []string{
		"change background", "replace background", "swap background", "new background", "background of the above image",
	}
	generationWords = []string{"image", "picture", "draw", "generate"}
	codingWords     = []string{"code", "python", "script", "function", "debug"}
)

const classifierPrompt = `You are an intent classifier.
Classify the user query into one of the following:
- image_generation
- research_coding
- casual_chat

Return ONLY the intent label.`

// step inspects a turn and either commits to an intent or passes.
type step func(ctx context.Context, message string, hasImage bool) (Intent, bool)

// Classifier maps (message, image presence) to an Intent through an
// ordered chain: keyword rules first, then a delegated LLM call, then
// keyword fallback. The chain order is a correctness contract: earlier
// steps win.
type Classifier struct {
	steps   []step
	timeout time.Duration
	log     *zap.Logger
}

// New builds the classifier. delegate is the small model used for the
// free-text step; its failure is always recovered by the keyword
// fallback, never surfaced. timeout bounds the delegate call; zero
// means unbounded.
func New(delegate llm.Client, timeout time.Duration, log *zap.Logger) *Classifier {
	c := &Classifier{timeout: timeout, log: log}
	c.steps = []step{
		ruleAutomation,
		ruleBackgroundRemoval,
		ruleBackgroundReplace,
		ruleVision,
		c.delegateStep(delegate),
		ruleKeywordFallback,
	}
	return c
}

// Classify never fails: the final step matches unconditionally.
func (c *Classifier) Classify(ctx context.Context, message string, hasImage bool) Intent {
	for _, s := range c.steps {
		if intent, ok := s(ctx, message, hasImage); ok {
			return intent
		}
	}
	return CasualChat
}

func ruleAutomation(_ context.Context, message string, _ bool) (Intent, bool) {
	if containsAny(message, automationPhrases) {
		return PersonalAutomation, true
	}
	return "", false
}

// Removal is only reachable with an image on the current turn.
func ruleBackgroundRemoval(_ context.Context, message string, hasImage bool) (Intent, bool) {
	if hasImage && containsAny(message, removalPhrases) {
		return ImageManipulation, true
	}
	return "", false
}

// Replacement is reachable without an image: the target may come from
// conversation history.
func ruleBackgroundReplace(_ context.Context, message string, _ bool) (Intent, bool) {
	if containsAny(message, replacePhrases) {
		return ImageManipulation, true
	}
	return "", false
}

func ruleVision(_ context.Context, _ string, hasImage bool) (Intent, bool) {
	if hasImage {
		return VisionAnalysis, true
	}
	return "", false
}

func (c *Classifier) delegateStep(delegate llm.Client) step {
	return func(ctx context.Context, message string, _ bool) (Intent, bool) {
		if delegate == nil {
			return "", false
		}
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		resp, err := delegate.Generate(ctx, []llm.Message{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: message},
		})
		if err != nil {
			c.log.Warn("intent delegate failed, using keyword fallback", zap.Error(err))
			return "", false
		}
		label := Intent(strings.ToLower(strings.TrimSpace(resp.Content)))
		switch label {
		case ImageGeneration, ResearchCoding, CasualChat:
			return label, true
		}
		c.log.Warn("intent delegate returned unknown label, using keyword fallback",
			zap.String("label", string(label)))
		return "", false
	}
}

func ruleKeywordFallback(_ context.Context, message string, _ bool) (Intent, bool) {
	switch {
	case containsAny(message, generationWords):
		return ImageGeneration, true
	case containsAny(message, codingWords):
		return ResearchCoding, true
	default:
		return CasualChat, true
	}
}

func containsAny(message string, phrases []string) bool {
	msg := strings.ToLower(message)
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
