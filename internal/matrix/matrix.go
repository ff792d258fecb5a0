// Package matrix expands a benchmark mode into the concrete ordered task
// list the executor consumes.
package matrix

import (
	"math"

	"github.com/platinumlabs/encbench/pkg/domain"
)

// PresetSource enumerates and speed-orders presets for an encoder. It is
// satisfied by the ffmpeg encoder collaborator and by test fakes.
type PresetSource interface {
	EnumeratePresets(encoderID string) []string
	SortPresetsBySpeed(encoderID string, presets []string) []string
}

// broadDropFraction is the share of slowest presets a broad sweep skips.
const broadDropFraction = 0.2

// BuildSingle returns one task per explicit user selection, in selection
// order.
func BuildSingle(selections []domain.BenchmarkTask) []domain.BenchmarkTask {
	out := make([]domain.BenchmarkTask, len(selections))
	copy(out, selections)
	return out
}

// Build expands a sweep mode over the cross-product of quality values and
// encoders. For each encoder the preset set is enumerated, ordered
// fastest-to-slowest, and filtered by the tier policy. Output order is
// deterministic for fixed inputs: qualities outermost, then encoders in
// the given order, then presets in speed order. An encoder with no
// enumerable presets contributes nothing.
func Build(mode domain.Mode, encoders []string, qualities []int, src PresetSource) []domain.BenchmarkTask {
	if mode == domain.ModeSingle {
		return nil
	}

	// An empty quality list still produces one pass with the encoder default.
	qs := make([]*int, 0, len(qualities))
	if len(qualities) == 0 {
		qs = append(qs, nil)
	}
	for i := range qualities {
		q := qualities[i]
		qs = append(qs, &q)
	}

	var tasks []domain.BenchmarkTask
	for _, q := range qs {
		for _, enc := range encoders {
			presets := src.SortPresetsBySpeed(enc, src.EnumeratePresets(enc))
			for _, p := range selectTier(mode, presets) {
				tasks = append(tasks, domain.BenchmarkTask{EncoderID: enc, Preset: p, Quality: q})
			}
		}
	}
	return tasks
}

func selectTier(mode domain.Mode, presets []string) []string {
	switch mode {
	case domain.ModeNarrow:
		return narrowWindow(presets)
	case domain.ModeBroad:
		return dropSlowest(presets)
	case domain.ModeExhaustive:
		return presets
	default:
		return nil
	}
}

// narrowWindow picks the middle preset plus the two immediately faster
// ones. Lists shorter than the window yield fewer picks rather than an
// error; duplicates collapse while preserving speed order.
func narrowWindow(presets []string) []string {
	n := len(presets)
	if n == 0 {
		return nil
	}
	mid := (n - 1) / 2
	lo := mid - 2
	if lo < 0 {
		lo = 0
	}

	seen := make(map[string]struct{}, 3)
	var out []string
	for _, p := range presets[lo : mid+1] {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// dropSlowest removes the slowest round(20%) presets, always keeping at
// least one.
func dropSlowest(presets []string) []string {
	n := len(presets)
	if n == 0 {
		return nil
	}
	drop := int(math.Round(float64(n) * broadDropFraction))
	if drop >= n {
		drop = n - 1
	}
	return presets[:n-drop]
}
