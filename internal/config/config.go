// Package config provides the configuration schema, loader, config diff,
// and file watcher for holdtalk.
package config

import (
	"fmt"

	"github.com/holdtalk/holdtalk/internal/pipeline"
)

// Config is the root configuration structure for holdtalk. It is typically
// loaded from a TOML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `toml:"server"`

	// StageConfigs holds the stage_configs.<Name> section. Each entry is
	// either a direct class default (no "class"/"stage_class" key, the map
	// key itself names the stage class) or a named instance that selects a
	// class via a "class" or "stage_class" key and supplies instance config
	// alongside it. The raw map form is kept here; [Config.ResolvedStageConfigs]
	// turns it into the shape [pipeline.Manager.Load] expects.
	StageConfigs map[string]map[string]any `toml:"stage_configs"`

	// Pipelines lists every pipeline in the order they appear in the file.
	// Order does not affect execution but is preserved for readability of
	// diagnostics.
	Pipelines []PipelineConfig `toml:"pipelines"`
}

// ServerConfig holds process-wide settings unrelated to any single pipeline.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`

	// KeyboardBackend is validated on load but read by no stage: a
	// pipeline's TypeText stage without its own "keyboard_backend" uses
	// "auto" regardless of this field.
	// Valid values: "auto", "direct", "wlroots-text", "extended-input-portal".
	KeyboardBackend string `toml:"keyboard_backend"`

	// WatchInterval is the config file poll interval, parsed with
	// [time.ParseDuration] (e.g. "5s"). Empty means the watcher's default.
	WatchInterval string `toml:"watch_interval"`

	// EITokenPath overrides the default path used to persist the EI portal's
	// RemoteDesktop restore token between runs. Empty means holdtalkd's
	// default, holdtalk/ei-restore-token under the per-user data directory
	// ($XDG_DATA_HOME, else ~/.local/share).
	EITokenPath string `toml:"ei_token_path"`
}

// PipelineConfig describes one pipelines[] entry as written in the file,
// before stage-reference resolution.
type PipelineConfig struct {
	// Name uniquely identifies this pipeline for TriggerByName and for
	// stage_configs-section instance lookups that happen to share its name.
	Name string `toml:"name"`

	// Enabled controls whether this pipeline is loaded into the hotkey map.
	// A disabled pipeline still validates, but triggering it by name fails
	// with pipeline.ErrPipelineDisabled.
	// Decoded as a pointer so an omitted key defaults to true (see
	// isEnabled) rather than silently decoding to false.
	Enabled *bool `toml:"enabled"`

	// Hotkey is the combination that triggers this pipeline, in the
	// "<ctrl>+<alt>+r" grammar shared by internal/hotkey's listeners.
	// Required when Enabled is true.
	Hotkey string `toml:"hotkey"`

	// Stages lists, in execution order, the names resolved against
	// StageConfigs (and, failing that, the stage registry directly).
	Stages []string `toml:"stages"`
}

// isEnabled reports the effective enabled state: an omitted "enabled" key
// (Enabled == nil) defaults to true, matching the original's
// config.get("enabled", True).
func (p PipelineConfig) isEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ResolvedStageConfigs converts the raw StageConfigs map into the
// [pipeline.StageConfigEntry] shape [pipeline.Manager.Load] consumes,
// splitting the "class"/"stage_class" selector key out of each instance's
// free-form config. It rejects any entry that sets both keys.
func (c *Config) ResolvedStageConfigs() (map[string]pipeline.StageConfigEntry, error) {
	out := make(map[string]pipeline.StageConfigEntry, len(c.StageConfigs))
	for name, raw := range c.StageConfigs {
		entry, err := resolveStageConfigEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("stage_configs.%s: %w", name, err)
		}
		out[name] = entry
	}
	return out, nil
}

// PipelineSpecs converts Pipelines into the [pipeline.PipelineSpec] shape
// [pipeline.Manager.Load] consumes.
func (c *Config) PipelineSpecs() []pipeline.PipelineSpec {
	specs := make([]pipeline.PipelineSpec, len(c.Pipelines))
	for i, p := range c.Pipelines {
		specs[i] = pipeline.PipelineSpec{
			Name:    p.Name,
			Enabled: p.isEnabled(),
			Hotkey:  p.Hotkey,
			Stages:  p.Stages,
		}
	}
	return specs
}

// resolveStageConfigEntry splits the class-selector keys out of one
// stage_configs.<Name> table.
func resolveStageConfigEntry(raw map[string]any) (pipeline.StageConfigEntry, error) {
	class, hasClass := stringField(raw, "class")
	stageClass, hasStageClass := stringField(raw, "stage_class")
	if hasClass && hasStageClass {
		return pipeline.StageConfigEntry{}, pipeline.ErrBothClassKeysSet
	}

	cfg := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "class" || k == "stage_class" {
			continue
		}
		cfg[k] = v
	}

	resolved := class
	if hasStageClass {
		resolved = stageClass
	}
	return pipeline.StageConfigEntry{Class: resolved, Config: cfg}, nil
}

// stringField reads a string-typed key out of a TOML-decoded map, reporting
// whether the key was present at all (regardless of type).
func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}
