// Command holdtalk-diag measures the XDG Desktop Portal GlobalShortcuts
// signal timing for one hotkey, to help an operator pick a debounce window
// for their compositor instead of trusting the conservative built-in
// default.
//
// It binds a single test hotkey via the same portal listener the daemon
// uses, records every press/release edge it observes, and on exit (Ctrl+C)
// prints the distribution of release→press gaps — the interval a spurious
// Deactivated/Activated pair around compositor-side key repeat would
// produce — along with a recommended debounce threshold.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/holdtalk/holdtalk/internal/hotkey"
)

const diagShortcutName = "diagnostic"

func main() {
	os.Exit(run())
}

func run() int {
	hotkeyStr := flag.String("hotkey", "<pause>", "hotkey to bind for the measurement (this module's hotkey grammar)")
	flag.Parse()

	recorder := newEdgeRecorder()
	listener := hotkey.NewPortalListener(recorder.onPress, recorder.onRelease)
	// A near-zero debounce reports each Deactivated/Activated edge instead of
	// merging short release->press gaps, which are what this tool measures.
	listener.Debounce = time.Nanosecond

	if err := listener.AddHotkey(diagShortcutName, *hotkeyStr); err != nil {
		fmt.Fprintf(os.Stderr, "holdtalk-diag: invalid hotkey %q: %v\n", *hotkeyStr, err)
		return 1
	}
	if err := listener.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "holdtalk-diag: failed to bind shortcut via the portal: %v\n", err)
		return 1
	}
	defer listener.Stop()

	fmt.Println("Portal session ready. Press and hold the hotkey for various durations")
	fmt.Println("(quick taps, 1s holds, 2s+ holds). Press Ctrl+C here to see statistics.")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println(recorder.summary())
	return 0
}

// edgeRecorder tracks every press/release timestamp the portal listener
// reports and derives the gap statistics the debounce recommendation needs.
type edgeRecorder struct {
	start time.Time

	lastEdge time.Time
	lastWasRelease bool

	releaseToPressGapsMs []float64
	pressToReleaseGapsMs []float64
}

func newEdgeRecorder() *edgeRecorder {
	return &edgeRecorder{start: time.Now()}
}

func (r *edgeRecorder) onPress(name string) {
	now := time.Now()
	elapsed := now.Sub(r.start).Seconds() * 1000

	if !r.lastEdge.IsZero() && r.lastWasRelease {
		gap := now.Sub(r.lastEdge).Seconds() * 1000
		r.releaseToPressGapsMs = append(r.releaseToPressGapsMs, gap)
		fmt.Printf("[%9.1fms] PRESS   (gap since release: %.1fms) [possible key repeat]\n", elapsed, gap)
	} else {
		fmt.Printf("[%9.1fms] PRESS\n", elapsed)
	}

	r.lastEdge = now
	r.lastWasRelease = false
}

func (r *edgeRecorder) onRelease(name string) {
	now := time.Now()
	elapsed := now.Sub(r.start).Seconds() * 1000

	if !r.lastEdge.IsZero() && !r.lastWasRelease {
		gap := now.Sub(r.lastEdge).Seconds() * 1000
		r.pressToReleaseGapsMs = append(r.pressToReleaseGapsMs, gap)
		fmt.Printf("[%9.1fms] RELEASE (held for: %.1fms)\n", elapsed, gap)
	} else {
		fmt.Printf("[%9.1fms] RELEASE\n", elapsed)
	}

	r.lastEdge = now
	r.lastWasRelease = true
}

func (r *edgeRecorder) summary() string {
	s := "\n" + line() + "\nTIMING STATISTICS SUMMARY\n" + line() + "\n"

	if len(r.releaseToPressGapsMs) == 0 {
		s += "\nNo release->press transitions recorded.\n"
		s += "(This happens with very short presses, or no key repeat occurred.)\n"
		s += "\nNot enough data to make a recommendation. Try holding the key down\n"
		s += "for 1-2 seconds to trigger compositor-side key repeat.\n"
		return s
	}

	gaps := append([]float64(nil), r.releaseToPressGapsMs...)
	sort.Float64s(gaps)

	min, max, avg := percentileStats(gaps)
	s += fmt.Sprintf("\nRelease -> press gaps (key repeat indicator):\n")
	s += fmt.Sprintf("  Count: %d\n  Min:   %.1f ms\n  Max:   %.1f ms\n  Avg:   %.1f ms\n", len(gaps), min, max, avg)
	s += fmt.Sprintf("  P50:   %.1f ms\n", percentile(gaps, 0.50))
	s += fmt.Sprintf("  P90:   %.1f ms\n", percentile(gaps, 0.90))

	recommended := recommendDebounce(max)
	s += "\n" + line() + "\nRECOMMENDATION\n" + line() + "\n"
	s += fmt.Sprintf("\nMax observed release->press gap: %.1f ms\n", max)
	s += fmt.Sprintf("Recommended debounce threshold:  %.0f ms (2x the max gap, clamped to 50-200ms)\n", recommended)
	s += fmt.Sprintf("Current built-in default:         %.0f ms\n", hotkey.DefaultDebounce.Seconds()*1000)
	return s
}

func percentileStats(sorted []float64) (min, max, avg float64) {
	min, max = sorted[0], sorted[0]
	var sum float64
	for _, v := range sorted {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	return min, max, sum / float64(len(sorted))
}

func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// recommendDebounce mirrors the original diagnostic's rule of thumb: twice
// the worst observed gap, clamped to a sane 50-200ms range.
func recommendDebounce(maxGapMs float64) float64 {
	recommended := maxGapMs * 2
	if recommended > 200 {
		recommended = 200
	}
	if recommended < 50 {
		recommended = 50
	}
	return recommended
}

func line() string {
	out := make([]byte, 60)
	for i := range out {
		out[i] = '='
	}
	return string(out)
}
