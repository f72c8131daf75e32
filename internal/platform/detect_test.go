package platform

import (
	"runtime"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	ClearCache()
	t.Cleanup(ClearCache)
}

func TestDetect_NonLinuxReturnsUnknown(t *testing.T) {
	if runtime.GOOS == "linux" {
		t.Skip("only meaningful on non-Linux")
	}
	info := Detect()
	if info.DisplayServer != DisplayServerUnknown {
		t.Errorf("DisplayServer = %v, want unknown on %s", info.DisplayServer, runtime.GOOS)
	}
}

func TestDetect_WaylandFromEnv(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only detection signals")
	}
	withEnv(t, map[string]string{"WAYLAND_DISPLAY": "wayland-0", "DISPLAY": ""})
	info := Detect()
	if info.DisplayServer != DisplayServerWayland {
		t.Errorf("DisplayServer = %v, want wayland", info.DisplayServer)
	}
}

func TestDetect_X11FromEnv(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only detection signals")
	}
	withEnv(t, map[string]string{"WAYLAND_DISPLAY": "", "DISPLAY": ":0"})
	info := Detect()
	if info.DisplayServer != DisplayServerX11 {
		t.Errorf("DisplayServer = %v, want x11", info.DisplayServer)
	}
}

func TestDetect_GnomeCompositor(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only detection signals")
	}
	withEnv(t, map[string]string{"WAYLAND_DISPLAY": "wayland-0", "XDG_CURRENT_DESKTOP": "GNOME"})
	info := Detect()
	if info.Compositor != CompositorGNOME {
		t.Errorf("Compositor = %v, want gnome", info.Compositor)
	}
}

func TestDetect_WlrootsCompositor(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only detection signals")
	}
	withEnv(t, map[string]string{"WAYLAND_DISPLAY": "wayland-0", "XDG_CURRENT_DESKTOP": "sway", "XDG_SESSION_DESKTOP": "sway"})
	info := Detect()
	if info.Compositor != CompositorWlroots {
		t.Errorf("Compositor = %v, want wlroots", info.Compositor)
	}
}

func TestDetect_CachesAcrossCalls(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only detection signals")
	}
	withEnv(t, map[string]string{"WAYLAND_DISPLAY": "wayland-0"})
	first := Detect()
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DISPLAY", ":0")
	second := Detect() // cached; env change must not be observed yet
	if first != second {
		t.Fatalf("expected cached result to be stable: %+v vs %+v", first, second)
	}
	ClearCache()
	third := Detect()
	if third.DisplayServer != DisplayServerX11 {
		t.Fatalf("expected fresh detection after ClearCache, got %v", third.DisplayServer)
	}
}
