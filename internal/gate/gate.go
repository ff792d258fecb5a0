// Package gate decides whether a finished trial is trustworthy enough to
// submit. Three checks run in order: virtualization, background CPU load,
// then a robust z-score comparison against baseline samples from machines
// with the same hardware and encode settings.
package gate

import (
	"fmt"
	"math"
	"sort"

	"github.com/platinumlabs/encbench/pkg/domain"
)

// madScale converts MAD to a standard-deviation-consistent estimator for
// normally distributed data.
const madScale = 1.4826

// Config carries the tunable thresholds.
type Config struct {
	// Sigma is the robust z-score magnitude above which a trial is an
	// outlier. Values at exactly Sigma pass.
	Sigma float64
	// LoadThresholdPercent rejects trials whose sampled background CPU
	// load exceeded this percentage.
	LoadThresholdPercent float64
}

// Decision is the gate verdict for one trial.
type Decision struct {
	Skip   bool
	Reason string
}

// Evaluate applies the checks in fixed order and returns the first
// failure. Environmental checks come before the statistical one so a
// virtualized or loaded machine is named as such even when its numbers
// also look anomalous.
func Evaluate(cfg Config, rec domain.ResultRecord, backgroundLoadPct float64, virtTags string, baseline []domain.BaselineSample) Decision {
	if virtTags != "" {
		return Decision{Skip: true, Reason: "virtualized environment: " + virtTags}
	}
	if backgroundLoadPct > cfg.LoadThresholdPercent {
		return Decision{Skip: true, Reason: fmt.Sprintf(
			"background CPU load %.1f%% exceeds %.1f%%", backgroundLoadPct, cfg.LoadThresholdPercent)}
	}

	peers := matchingSamples(rec, baseline)
	if len(peers) == 0 {
		return Decision{}
	}

	if z, metric, ok := maxRobustZ(rec, peers); ok && math.Abs(z) > cfg.Sigma {
		return Decision{Skip: true, Reason: fmt.Sprintf(
			"%s robust z-score %.2f exceeds %.2f against %d baseline samples", metric, z, cfg.Sigma, len(peers))}
	}
	return Decision{}
}

// matchingSamples filters the baseline to samples whose key matches this
// trial's hardware and encode settings exactly.
func matchingSamples(rec domain.ResultRecord, baseline []domain.BaselineSample) []domain.BaselineSample {
	key := rec.Key()
	var out []domain.BaselineSample
	for _, s := range baseline {
		if s.Key() == key {
			out = append(out, s)
		}
	}
	return out
}

// maxRobustZ scores this trial's fps, file size and vmaf independently
// against the peer distribution and returns the largest-magnitude one.
func maxRobustZ(rec domain.ResultRecord, peers []domain.BaselineSample) (z float64, metric string, ok bool) {
	fpsVals := make([]float64, 0, len(peers))
	sizeVals := make([]float64, 0, len(peers))
	var vmafVals []float64
	for _, s := range peers {
		fpsVals = append(fpsVals, s.FPS)
		sizeVals = append(sizeVals, float64(s.FileSizeBytes))
		if s.VMAF != nil {
			vmafVals = append(vmafVals, *s.VMAF)
		}
	}

	consider := func(v float64, vals []float64, name string) {
		if len(vals) == 0 {
			return
		}
		if cz := robustZ(v, vals); !ok || math.Abs(cz) > math.Abs(z) {
			z, metric, ok = cz, name, true
		}
	}
	consider(rec.FPS, fpsVals, "fps")
	consider(float64(rec.FileSizeBytes), sizeVals, "fileSize")
	if rec.VMAF != nil {
		consider(*rec.VMAF, vmafVals, "vmaf")
	}
	return z, metric, ok
}

// robustZ is (v - median) / (madScale * MAD). A zero MAD (identical
// baseline values) falls back to a divisor of 1 so any deviation from the
// median registers at full magnitude.
func robustZ(v float64, samples []float64) float64 {
	med := median(samples)
	devs := make([]float64, len(samples))
	for i, s := range samples {
		devs[i] = math.Abs(s - med)
	}
	div := madScale * median(devs)
	if div == 0 {
		div = 1
	}
	return (v - med) / div
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
