package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// validLogLevels lists the log levels accepted by server.log_level.
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// validKeyboardBackends lists the preferences accepted by
// server.keyboard_backend, mirroring [keyboard.Preference]'s constants.
var validKeyboardBackends = map[string]bool{
	"":                      true,
	"auto":                  true,
	"direct":                true,
	"wlroots-text":          true,
	"extended-input-portal": true,
}

// Load reads the TOML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a TOML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := toml.NewDecoder(bytesReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode toml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found; non-fatal oddities
// are logged as warnings instead of rejected.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !validLogLevels[cfg.Server.LogLevel] {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !validKeyboardBackends[cfg.Server.KeyboardBackend] {
		errs = append(errs, fmt.Errorf("server.keyboard_backend %q is invalid; valid values: auto, direct, wlroots-text, extended-input-portal", cfg.Server.KeyboardBackend))
	}
	if cfg.Server.WatchInterval != "" {
		if d, err := time.ParseDuration(cfg.Server.WatchInterval); err != nil {
			errs = append(errs, fmt.Errorf("server.watch_interval %q is not a valid duration: %w", cfg.Server.WatchInterval, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("server.watch_interval %q must be positive", cfg.Server.WatchInterval))
		}
	}

	if len(cfg.Pipelines) == 0 {
		slog.Warn("config has no pipelines; holdtalk will run with no hotkeys bound")
	}

	stageConfigs, err := cfg.ResolvedStageConfigs()
	if err != nil {
		errs = append(errs, err)
	}

	namesSeen := make(map[string]int, len(cfg.Pipelines))
	hotkeysSeen := make(map[string]string, len(cfg.Pipelines))

	for i, p := range cfg.Pipelines {
		prefix := fmt.Sprintf("pipelines[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := namesSeen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of pipelines[%d]", prefix, p.Name, prev))
		} else {
			namesSeen[p.Name] = i
		}

		if len(p.Stages) == 0 {
			errs = append(errs, fmt.Errorf("%s.stages must list at least one stage", prefix))
		}

		if p.isEnabled() {
			if p.Hotkey == "" {
				errs = append(errs, fmt.Errorf("%s.hotkey is required when enabled is true", prefix))
			} else if prev, dup := hotkeysSeen[p.Hotkey]; dup {
				errs = append(errs, fmt.Errorf("%s.hotkey %q collides with pipeline %q", prefix, p.Hotkey, prev))
			} else {
				hotkeysSeen[p.Hotkey] = p.Name
			}
		}
	}

	for name, entry := range stageConfigs {
		if entry.Class == name {
			slog.Warn("stage_configs entry names its own class explicitly; the class key is redundant for a direct default", "name", name)
		}
	}

	return errors.Join(errs...)
}
