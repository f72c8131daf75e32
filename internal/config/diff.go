package config

import "github.com/google/go-cmp/cmp"

// ConfigDiff describes what changed between two configs. Used by the
// watcher's onChange callback to decide what must be rebuilt on reload.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	// PipelinesChanged is true if any pipeline was added, removed, or had
	// its hotkey, enabled flag, or stage list change. A changed pipeline
	// set means the caller must rebuild and reload the pipeline.Manager.
	PipelinesChanged bool
	PipelineChanges  []PipelineDiff
}

// PipelineDiff describes what changed for a single named pipeline between
// two configs.
type PipelineDiff struct {
	Name           string
	Added          bool
	Removed        bool
	EnabledChanged bool
	HotkeyChanged  bool
	StagesChanged  bool
}

// Diff compares old and new configs and returns what changed. Server fields
// other than log level (e.g. keyboard_backend) are not tracked here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldPipelines := make(map[string]*PipelineConfig, len(old.Pipelines))
	for i := range old.Pipelines {
		oldPipelines[old.Pipelines[i].Name] = &old.Pipelines[i]
	}
	newPipelines := make(map[string]*PipelineConfig, len(new.Pipelines))
	for i := range new.Pipelines {
		newPipelines[new.Pipelines[i].Name] = &new.Pipelines[i]
	}

	for name, oldP := range oldPipelines {
		newP, exists := newPipelines[name]
		if !exists {
			d.PipelineChanges = append(d.PipelineChanges, PipelineDiff{Name: name, Removed: true})
			d.PipelinesChanged = true
			continue
		}
		pd := diffPipeline(name, oldP, newP)
		if pd.EnabledChanged || pd.HotkeyChanged || pd.StagesChanged {
			d.PipelineChanges = append(d.PipelineChanges, pd)
			d.PipelinesChanged = true
		}
	}

	for name := range newPipelines {
		if _, exists := oldPipelines[name]; !exists {
			d.PipelineChanges = append(d.PipelineChanges, PipelineDiff{Name: name, Added: true})
			d.PipelinesChanged = true
		}
	}

	return d
}

// diffPipeline compares two pipeline configs with the same name.
func diffPipeline(name string, old, new *PipelineConfig) PipelineDiff {
	pd := PipelineDiff{Name: name}

	if old.isEnabled() != new.isEnabled() {
		pd.EnabledChanged = true
	}
	if old.Hotkey != new.Hotkey {
		pd.HotkeyChanged = true
	}
	if !cmp.Equal(old.Stages, new.Stages) {
		pd.StagesChanged = true
	}

	return pd
}
