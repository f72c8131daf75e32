// Package agent defines the interface the LLM-agent stage calls to transform
// transcribed text. Model client internals (HTTP transport, authentication,
// streaming) are out of scope for this module.
package agent

import "context"

// Backend synchronously completes one prompt. systemPrompt and input are
// sent as-is; opts carries the stage's resolved temperature/max_tokens
// settings. A non-nil error or an empty response string is treated as a
// backend failure by the calling stage.
type Backend interface {
	Complete(ctx context.Context, systemPrompt, input string, opts map[string]any) (string, error)
}
