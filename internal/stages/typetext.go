package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/holdtalk/holdtalk/internal/keyboard"
	"github.com/holdtalk/holdtalk/internal/pipeline"
)

const typeTextStageClass = "TypeText"

// TypeText is the terminal stage: forward transcribed (and optionally
// corrected/agent-processed) text to the virtual-keyboard dispatcher.
type TypeText struct {
	dispatcher *keyboard.Dispatcher
	preference keyboard.Preference
}

// NewTypeText is a pipeline.StageFactory. metadata must carry a
// "keyboard_dispatcher" entry.
func NewTypeText(config map[string]any, metadata map[string]any) (pipeline.Stage, error) {
	dispatcher, ok := metadata["keyboard_dispatcher"].(*keyboard.Dispatcher)
	if !ok {
		return nil, errors.New("stages: TypeText requires a keyboard_dispatcher in run metadata")
	}
	pref := keyboard.PreferenceAuto
	if v, ok := config["keyboard_backend"].(string); ok && v != "" {
		pref = keyboard.Preference(v)
	}
	return &TypeText{dispatcher: dispatcher, preference: pref}, nil
}

func (t *TypeText) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	defer pctx.Icon.SetIcon("idle")

	text, _ := input.(string)
	if text == "" {
		return nil, nil
	}
	if err := t.dispatcher.TypeText(ctx, text, t.preference); err != nil {
		return nil, fmt.Errorf("stages: TypeText: %w", err)
	}
	return nil, nil
}

func TypeTextDefinition() pipeline.StageDefinition {
	return pipeline.StageDefinition{
		Name:              typeTextStageClass,
		InputType:         pipeline.TypeOptionalString,
		OutputType:        pipeline.TypeUnit,
		RequiredResources: pipeline.NewResourceSet(pipeline.ResourceKeyboard),
		Factory:           NewTypeText,
	}
}
