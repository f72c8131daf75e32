package keyboard

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// wlrootsWatchdog bounds how long the external text-injection tool may run.
const wlrootsWatchdog = 30 * time.Second

// WlrootsBackend passes the whole string to an external text-injection
// tool (e.g. wtype) with a watchdog. Any non-zero exit or timeout is a hard
// failure — unlike the direct back end, there is no partial-success notion
// here since the tool receives the string in one call.
type WlrootsBackend struct {
	// Tool is the executable name or path (default "wtype").
	Tool string
	// Args are extra arguments inserted before the text argument.
	Args []string
}

// NewWlrootsBackend builds a WlrootsBackend invoking tool (default "wtype"
// if empty).
func NewWlrootsBackend(tool string, args ...string) *WlrootsBackend {
	if tool == "" {
		tool = "wtype"
	}
	return &WlrootsBackend{Tool: tool, Args: args}
}

// TypeText runs the configured tool with text as its final argument, killing
// it if it exceeds the watchdog.
func (b *WlrootsBackend) TypeText(ctx context.Context, text string) error {
	watchCtx, cancel := context.WithTimeout(ctx, wlrootsWatchdog)
	defer cancel()

	args := append(append([]string{}, b.Args...), text)
	cmd := exec.CommandContext(watchCtx, b.Tool, args...)
	output, err := cmd.CombinedOutput()
	if watchCtx.Err() != nil {
		return fmt.Errorf("wlroots text-input backend: %s timed out after %s", b.Tool, wlrootsWatchdog)
	}
	if err != nil {
		return fmt.Errorf("wlroots text-input backend: %s failed: %w (output: %s)", b.Tool, err, output)
	}
	return nil
}
