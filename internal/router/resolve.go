package router

import "askgpt/internal/llm"

// ResolveImage picks the working image for an image-manipulation turn.
// An explicitly attached image always wins. Otherwise the history is
// scanned from most recent to oldest and the first user-authored image
// is returned. Assistant-generated images are skipped: "change the
// background" acts on what the user uploaded, not on a previously
// generated result.
//
// Returns "" when no image is resolvable; callers turn that into a
// user-facing instruction, not an error.
func ResolveImage(explicit string, history []llm.Message) string {
	if explicit != "" {
		return explicit
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" && history[i].Image != "" {
			return history[i].Image
		}
	}
	return ""
}
