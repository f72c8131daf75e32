package stages

import (
	"context"
	"errors"
	"testing"
)

type fakeAgentBackend struct {
	response string
	err      error
	calls    int
}

func (f *fakeAgentBackend) Complete(ctx context.Context, systemPrompt, input string, opts map[string]any) (string, error) {
	f.calls++
	return f.response, f.err
}

func baseAgentConfig() map[string]any {
	return map[string]any{
		"provider":      "some-model",
		"system_prompt": "You rewrite dictated text.",
	}
}

func TestLLMAgentNilInputShortCircuits(t *testing.T) {
	backend := &fakeAgentBackend{response: "ignored"}
	stage, err := NewLLMAgent(baseAgentConfig(), map[string]any{"agent_backend": backend})
	if err != nil {
		t.Fatal(err)
	}
	out, err := stage.Execute(context.Background(), nil, newTestContext())
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("out = %v, want nil", out)
	}
	if backend.calls != 0 {
		t.Fatalf("backend should not have been called, calls = %d", backend.calls)
	}
}

func TestLLMAgentNoTriggerKeywordsAlwaysCalls(t *testing.T) {
	backend := &fakeAgentBackend{response: "rewritten"}
	stage, err := NewLLMAgent(baseAgentConfig(), map[string]any{"agent_backend": backend})
	if err != nil {
		t.Fatal(err)
	}
	out, err := stage.Execute(context.Background(), "dictated text", newTestContext())
	if err != nil {
		t.Fatal(err)
	}
	if out != "rewritten" {
		t.Fatalf("out = %v", out)
	}
}

func TestLLMAgentTriggerKeywordGatesCall(t *testing.T) {
	backend := &fakeAgentBackend{response: "rewritten"}
	cfg := baseAgentConfig()
	cfg["trigger_keywords"] = []any{"computer"}
	stage, err := NewLLMAgent(cfg, map[string]any{"agent_backend": backend})
	if err != nil {
		t.Fatal(err)
	}

	out, err := stage.Execute(context.Background(), "no magic word here", newTestContext())
	if err != nil {
		t.Fatal(err)
	}
	if out != "no magic word here" {
		t.Fatalf("out = %v, want passthrough when no trigger keyword present", out)
	}
	if backend.calls != 0 {
		t.Fatalf("backend should not have been called, calls = %d", backend.calls)
	}

	out, err = stage.Execute(context.Background(), "hey COMPUTER do something", newTestContext())
	if err != nil {
		t.Fatal(err)
	}
	if out != "rewritten" {
		t.Fatalf("out = %v, want backend response on case-insensitive keyword match", out)
	}
}

func TestLLMAgentFallbackOnError(t *testing.T) {
	backend := &fakeAgentBackend{err: errors.New("timeout")}
	stage, err := NewLLMAgent(baseAgentConfig(), map[string]any{"agent_backend": backend})
	if err != nil {
		t.Fatal(err)
	}
	out, err := stage.Execute(context.Background(), "dictated text", newTestContext())
	if err != nil {
		t.Fatal(err)
	}
	if out != "dictated text" {
		t.Fatalf("out = %v, want original text passed through on fallback", out)
	}
}

func TestLLMAgentNoFallbackReturnsNilOnError(t *testing.T) {
	backend := &fakeAgentBackend{err: errors.New("timeout")}
	cfg := baseAgentConfig()
	cfg["fallback_on_error"] = false
	stage, err := NewLLMAgent(cfg, map[string]any{"agent_backend": backend})
	if err != nil {
		t.Fatal(err)
	}
	out, err := stage.Execute(context.Background(), "dictated text", newTestContext())
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("out = %v, want nil", out)
	}
}

func TestLLMAgentRequiresSystemPrompt(t *testing.T) {
	cfg := map[string]any{"provider": "some-model"}
	if _, err := NewLLMAgent(cfg, map[string]any{"agent_backend": &fakeAgentBackend{}}); err == nil {
		t.Fatal("expected error for missing system_prompt")
	}
}

func TestLLMAgentRequiresProvider(t *testing.T) {
	cfg := map[string]any{"system_prompt": "x"}
	if _, err := NewLLMAgent(cfg, map[string]any{"agent_backend": &fakeAgentBackend{}}); err == nil {
		t.Fatal("expected error for missing provider")
	}
}
