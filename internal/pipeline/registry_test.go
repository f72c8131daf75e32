package pipeline

import (
	"context"
	"errors"
	"testing"
)

type noopStage struct{}

func (noopStage) Execute(context.Context, any, *Context) (any, error) { return nil, nil }

func trivialFactory(map[string]any, map[string]any) (Stage, error) { return noopStage{}, nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	def := StageDefinition{
		Name:       "RecordAudio",
		InputType:  TypeUnit,
		OutputType: TypeOptionalPath,
		Factory:    trivialFactory,
	}
	if err := r.Register(def); err != nil {
		t.Fatalf("unexpected error registering: %v", err)
	}

	got, err := r.Lookup("RecordAudio")
	if err != nil {
		t.Fatalf("unexpected error looking up: %v", err)
	}
	if got.OutputType != TypeOptionalPath {
		t.Errorf("OutputType = %v, want %v", got.OutputType, TypeOptionalPath)
	}
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	r := NewRegistry()
	def := StageDefinition{Name: "X", Factory: trivialFactory}
	if err := r.Register(def); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(def)
	if !errors.Is(err, ErrStageAlreadyRegistered) {
		t.Fatalf("err = %v, want ErrStageAlreadyRegistered", err)
	}
}

func TestRegistry_LookupUnknownFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("Nope")
	if !errors.Is(err, ErrStageNotRegistered) {
		t.Fatalf("err = %v, want ErrStageNotRegistered", err)
	}
}

func TestRegistry_ValidateSingleStageAlwaysSucceeds(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"A", "B", "C"} {
		r.Register(StageDefinition{Name: name, InputType: TypeUnit, OutputType: TypeOptionalString, Factory: trivialFactory})
	}
	for _, name := range []string{"A", "B", "C"} {
		if err := r.Validate([]string{name}); err != nil {
			t.Errorf("Validate([%s]) = %v, want nil", name, err)
		}
	}
}

func TestRegistry_ValidateEmptyFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Validate(nil); !errors.Is(err, ErrEmptyPipeline) {
		t.Fatalf("err = %v, want ErrEmptyPipeline", err)
	}
}

func TestRegistry_ValidateUnknownStageFails(t *testing.T) {
	r := NewRegistry()
	r.Register(StageDefinition{Name: "A", InputType: TypeUnit, OutputType: TypeOptionalString, Factory: trivialFactory})
	err := r.Validate([]string{"A", "Ghost"})
	if !errors.Is(err, ErrStageNotRegistered) {
		t.Fatalf("err = %v, want ErrStageNotRegistered", err)
	}
}

func TestRegistry_ValidateTypeMismatchFails(t *testing.T) {
	r := NewRegistry()
	r.Register(StageDefinition{Name: "Record", InputType: TypeUnit, OutputType: TypeOptionalPath, Factory: trivialFactory})
	r.Register(StageDefinition{Name: "Type", InputType: TypeOptionalString, OutputType: TypeUnit, Factory: trivialFactory})

	err := r.Validate([]string{"Record", "Type"})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestRegistry_ValidateMatchingChainSucceeds(t *testing.T) {
	r := NewRegistry()
	r.Register(StageDefinition{Name: "Record", InputType: TypeUnit, OutputType: TypeOptionalPath, Factory: trivialFactory})
	r.Register(StageDefinition{Name: "Transcribe", InputType: TypeOptionalPath, OutputType: TypeOptionalString, Factory: trivialFactory})
	r.Register(StageDefinition{Name: "Type", InputType: TypeOptionalString, OutputType: TypeUnit, Factory: trivialFactory})

	if err := r.Validate([]string{"Record", "Transcribe", "Type"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRegistry_RequiredResourcesUnion(t *testing.T) {
	r := NewRegistry()
	r.Register(StageDefinition{Name: "Record", RequiredResources: NewResourceSet(ResourceAudioInput), Factory: trivialFactory})
	r.Register(StageDefinition{Name: "Type", RequiredResources: NewResourceSet(ResourceKeyboard), Factory: trivialFactory})

	union := r.RequiredResources([]string{"Record", "Type"})
	if _, ok := union[ResourceAudioInput]; !ok {
		t.Error("expected AUDIO_INPUT in union")
	}
	if _, ok := union[ResourceKeyboard]; !ok {
		t.Error("expected KEYBOARD in union")
	}
}
