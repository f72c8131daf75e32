package stages

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/holdtalk/holdtalk/internal/observe"
	"github.com/holdtalk/holdtalk/internal/pipeline"
	"github.com/holdtalk/holdtalk/pkg/stt"
)

const transcribeStageClass = "Transcribe"

// litellmMaxBytes is the size above which, for the litellm provider,
// Execute logs a warning that the audio file is over the upload limit. No
// transcoding is done; the original file is still sent to the backend.
const litellmMaxBytes = 25 * 1024 * 1024

// Transcribe turns a recorded audio file into text via a pluggable STT
// backend. A nil input (recording discarded as too short) short-circuits to
// nil output without touching the backend.
type Transcribe struct {
	backend stt.Backend
	config  map[string]any
}

// NewTranscribe is a pipeline.StageFactory. metadata must carry an
// "stt_backend" entry implementing stt.Backend.
func NewTranscribe(config map[string]any, metadata map[string]any) (pipeline.Stage, error) {
	backend, ok := metadata["stt_backend"].(stt.Backend)
	if !ok {
		return nil, errors.New("stages: Transcribe requires an stt_backend in run metadata")
	}
	return &Transcribe{backend: backend, config: config}, nil
}

func (t *Transcribe) Execute(ctx context.Context, input any, pctx *pipeline.Context) (any, error) {
	path, _ := input.(string)
	if path == "" {
		return nil, nil
	}

	if provider, _ := t.config["provider"].(string); provider == "litellm" {
		if info, err := os.Stat(path); err == nil && info.Size() > litellmMaxBytes {
			// A real deployment would shell out to an audio transcoder here
			// (e.g. ffmpeg) to shrink the file; that tool is out of this
			// module's scope, so we log the condition and proceed with the
			// original file rather than silently dropping the recording.
			observe.Logger(ctx).Warn("transcribe: audio exceeds litellm size limit, no transcoder configured",
				"path", path, "size_bytes", info.Size())
		}
	}

	text, err := t.backend.Transcribe(ctx, path, t.config)
	if err != nil {
		observe.Logger(ctx).Error("transcribe: backend failure", "err", err)
		return nil, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return text, nil
}

func TranscribeDefinition() pipeline.StageDefinition {
	return pipeline.StageDefinition{
		Name:              transcribeStageClass,
		InputType:         pipeline.TypeOptionalPath,
		OutputType:        pipeline.TypeOptionalString,
		RequiredResources: pipeline.NewResourceSet(),
		Factory:           NewTranscribe,
	}
}
