package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// DataType tags the shape of a value flowing between stages. The distilled
// stage signatures are dynamically checked in the source language; here they
// are encoded as an explicit enum compared at registration and validation
// time instead of by reflection.
type DataType int

const (
	// TypeUnit carries no information. Used as the input type of the first
	// stage in a pipeline and the output type of a terminal stage.
	TypeUnit DataType = iota
	// TypeOptionalPath is a string file path, or absence of one.
	TypeOptionalPath
	// TypeOptionalString is a text value, or absence of one.
	TypeOptionalString
)

func (d DataType) String() string {
	switch d {
	case TypeUnit:
		return "unit"
	case TypeOptionalPath:
		return "optional_path"
	case TypeOptionalString:
		return "optional_string"
	default:
		return "unknown_type"
	}
}

// Stage is the contract every stage class implements. Execute receives the
// previous stage's output (nil for the first stage) and the per-run context,
// and returns this stage's output or an error. A returned error aborts the
// run; subsequent stages are skipped, but cleanup of every already-created
// stage still runs.
type Stage interface {
	Execute(ctx context.Context, input any, pctx *Context) (any, error)
}

// Cleanup is implemented by stages that hold temporaries needing release
// after a run, regardless of whether the run succeeded, failed, or was
// cancelled. Cleanup errors are logged and swallowed individually; they never
// prevent the remaining stages' cleanups from running.
type Cleanup interface {
	Cleanup() error
}

// StageFactory constructs a Stage instance from a stage-specific config
// mapping and shared run metadata. Config keys are generic at this layer;
// each stage's factory is responsible for interpreting its own recognized
// keys into a strongly typed config struct.
type StageFactory func(config map[string]any, metadata map[string]any) (Stage, error)

// StageDefinition is a registered stage class: its name, declared I/O types,
// required resources, and the factory that builds instances of it. Once
// registered, a definition is never mutated.
type StageDefinition struct {
	Name              string
	InputType         DataType
	OutputType        DataType
	RequiredResources ResourceSet
	Factory           StageFactory
}

var (
	// ErrStageAlreadyRegistered is returned by Register when name is already
	// taken.
	ErrStageAlreadyRegistered = errors.New("pipeline: stage already registered")
	// ErrStageNotRegistered is returned by Lookup and Validate for an unknown
	// stage-class name.
	ErrStageNotRegistered = errors.New("pipeline: stage not registered")
	// ErrEmptyPipeline is returned by Validate when given no stage names.
	ErrEmptyPipeline = errors.New("pipeline: pipeline has no stages")
	// ErrTypeMismatch is returned by Validate when adjacent stages' output
	// and input types disagree.
	ErrTypeMismatch = errors.New("pipeline: adjacent stage type mismatch")
)

// ValidationError wraps ErrTypeMismatch (or a not-registered error) with the
// offending stage names and index for diagnostics.
type ValidationError struct {
	Index int
	Stage string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pipeline: stage %d (%s): %v", e.Index, e.Stage, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
