// Package stages implements the canonical pipeline stages: RecordAudio,
// Transcribe, TypeText, RegexCorrector, and LLMAgent.
package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/holdtalk/holdtalk/internal/observe"
	"github.com/holdtalk/holdtalk/internal/pipeline"
	"github.com/holdtalk/holdtalk/pkg/audiosrc"
)

const (
	recordStageClass = "RecordAudio"

	defaultMaxDuration     = 60 * time.Second
	defaultMinimumDuration = 250 * time.Millisecond
)

// recordAudioConfig is RecordAudio's parsed configuration.
type recordAudioConfig struct {
	maxDuration     time.Duration
	minimumDuration time.Duration
	deviceName      string
}

func parseRecordAudioConfig(raw map[string]any) recordAudioConfig {
	cfg := recordAudioConfig{maxDuration: defaultMaxDuration, minimumDuration: defaultMinimumDuration}
	if v, ok := raw["max_duration"]; ok {
		if secs, ok := toFloat(v); ok {
			cfg.maxDuration = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := raw["minimum_duration"]; ok {
		if secs, ok := toFloat(v); ok {
			cfg.minimumDuration = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := raw["device_name"].(string); ok {
		cfg.deviceName = v
	}
	return cfg
}

// RecordAudio captures microphone audio for the duration of a hotkey press
// (or up to max_duration, whichever is shorter), discarding recordings
// under minimum_duration.
type RecordAudio struct {
	source     audiosrc.Source
	cfg        recordAudioConfig
	retainPath string
}

// NewRecordAudio is a pipeline.StageFactory. metadata must carry an
// "audio_source" entry implementing audiosrc.Source.
func NewRecordAudio(config map[string]any, metadata map[string]any) (pipeline.Stage, error) {
	source, ok := metadata["audio_source"].(audiosrc.Source)
	if !ok {
		return nil, errors.New("stages: RecordAudio requires an audio_source in run metadata")
	}
	return &RecordAudio{source: source, cfg: parseRecordAudioConfig(config)}, nil
}

// Execute ignores input (RecordAudio is always the first stage) and returns
// the recorded file path, or nil if the capture was shorter than
// minimum_duration.
func (r *RecordAudio) Execute(ctx context.Context, _ any, pctx *pipeline.Context) (any, error) {
	if err := r.source.StartCapture(r.cfg.deviceName); err != nil {
		return nil, fmt.Errorf("stages: RecordAudio: start capture: %w", err)
	}
	pctx.Icon.SetIcon("recording")

	if pctx.Trigger != nil {
		pctx.Trigger.WaitForCompletion(r.cfg.maxDuration)
	} else {
		pctx.WaitCancel(r.cfg.maxDuration)
	}

	path, duration, err := r.source.StopCapture()
	if err != nil {
		return nil, fmt.Errorf("stages: RecordAudio: stop capture: %w", err)
	}
	r.retainPath = path

	if duration < r.cfg.minimumDuration {
		observe.Logger(ctx).Debug("recording discarded: below minimum duration",
			"duration_ms", duration.Milliseconds(), "minimum_ms", r.cfg.minimumDuration.Milliseconds())
		return nil, nil
	}
	return path, nil
}

// Cleanup deletes the retained recording file, tolerating its absence (it
// may already have been consumed/removed downstream).
func (r *RecordAudio) Cleanup() error {
	if r.retainPath == "" {
		return nil
	}
	if err := os.Remove(r.retainPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stages: RecordAudio cleanup: %w", err)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// RecordAudioDefinition returns the pipeline.StageDefinition for RecordAudio,
// for wiring into a pipeline.Registry.
func RecordAudioDefinition() pipeline.StageDefinition {
	return pipeline.StageDefinition{
		Name:              recordStageClass,
		InputType:         pipeline.TypeUnit,
		OutputType:        pipeline.TypeOptionalPath,
		RequiredResources: pipeline.NewResourceSet(pipeline.ResourceAudioInput),
		Factory:           NewRecordAudio,
	}
}
