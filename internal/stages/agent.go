package stages

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/holdtalk/holdtalk/internal/observe"
	"github.com/holdtalk/holdtalk/internal/pipeline"
	"github.com/holdtalk/holdtalk/pkg/agent"
)

const (
	llmAgentStageClass   = "LLMAgent"
	defaultAgentTimeout  = 30 * time.Second
	defaultFallbackOnErr = true
)

type llmAgentConfig struct {
	systemPrompt    string
	triggerKeywords []string
	timeout         time.Duration
	fallbackOnError bool
	opts            map[string]any
}

func parseLLMAgentConfig(raw map[string]any) (llmAgentConfig, error) {
	cfg := llmAgentConfig{timeout: defaultAgentTimeout, fallbackOnError: defaultFallbackOnErr, opts: make(map[string]any)}

	prompt, _ := raw["system_prompt"].(string)
	if prompt == "" {
		return cfg, errors.New("stages: LLMAgent requires a non-empty system_prompt")
	}
	cfg.systemPrompt = prompt

	if _, ok := raw["provider"].(string); !ok {
		return cfg, errors.New("stages: LLMAgent requires a provider")
	}

	if kws, ok := raw["trigger_keywords"].([]any); ok {
		for _, kw := range kws {
			if s, ok := kw.(string); ok && s != "" {
				cfg.triggerKeywords = append(cfg.triggerKeywords, strings.ToLower(s))
			}
		}
	}
	if v, ok := raw["timeout_seconds"]; ok {
		if secs, ok := toFloat(v); ok {
			cfg.timeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := raw["fallback_on_error"].(bool); ok {
		cfg.fallbackOnError = v
	}
	if v, ok := raw["temperature"]; ok {
		cfg.opts["temperature"] = v
	}
	if v, ok := raw["max_tokens"]; ok {
		cfg.opts["max_tokens"] = v
	}
	return cfg, nil
}

// LLMAgent optionally rewrites transcribed text through an LLM backend,
// gated by a keyword trigger list.
type LLMAgent struct {
	backend agent.Backend
	cfg     llmAgentConfig
}

// NewLLMAgent is a pipeline.StageFactory. metadata must carry an
// "agent_backend" entry implementing agent.Backend.
func NewLLMAgent(config map[string]any, metadata map[string]any) (pipeline.Stage, error) {
	backend, ok := metadata["agent_backend"].(agent.Backend)
	if !ok {
		return nil, errors.New("stages: LLMAgent requires an agent_backend in run metadata")
	}
	cfg, err := parseLLMAgentConfig(config)
	if err != nil {
		return nil, err
	}
	return &LLMAgent{backend: backend, cfg: cfg}, nil
}

func (a *LLMAgent) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	text, _ := input.(string)
	if text == "" {
		return nil, nil
	}

	if len(a.cfg.triggerKeywords) > 0 && !containsAnyKeyword(text, a.cfg.triggerKeywords) {
		return text, nil
	}

	pctx.Icon.SetIcon("processing")

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.timeout)
	defer cancel()

	response, err := a.backend.Complete(callCtx, a.cfg.systemPrompt, text, a.cfg.opts)
	if err != nil || response == "" {
		if err != nil {
			observe.Logger(ctx).Error("llm agent: backend failure", "err", err)
		}
		if a.cfg.fallbackOnError {
			return text, nil
		}
		return nil, nil
	}
	return response, nil
}

func containsAnyKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func LLMAgentDefinition() pipeline.StageDefinition {
	return pipeline.StageDefinition{
		Name:              llmAgentStageClass,
		InputType:         pipeline.TypeOptionalString,
		OutputType:        pipeline.TypeOptionalString,
		RequiredResources: pipeline.NewResourceSet(),
		Factory:           NewLLMAgent,
	}
}
