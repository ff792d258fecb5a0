// Package resources sizes the worker pool and produces the point-in-time
// environmental signals (background load, virtualization hints) consumed by
// result gating.
package resources

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/platinumlabs/encbench/pkg/domain"
)

// WorkerCount returns override when positive, else the physical core count.
// When physical cores cannot be determined it falls back to half the
// logical count, with a floor of 1.
func WorkerCount(override int) int {
	if override > 0 {
		return override
	}
	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		return physical
	}
	if logical, err := cpu.Counts(true); err == nil && logical > 0 {
		if half := logical / 2; half > 0 {
			return half
		}
	}
	return 1
}

// SampleBackgroundLoad blocks for roughly window, sampling aggregate CPU
// utilization every interval, and returns the mean percentage. This is a
// deliberate one-shot measurement taken right before an encode, not a
// monitor.
func SampleBackgroundLoad(ctx context.Context, window, interval time.Duration) float64 {
	if window <= 0 {
		window = time.Second
	}
	if interval <= 0 || interval > window {
		interval = window
	}

	var sum float64
	var n int
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		// cpu.Percent blocks for interval and returns aggregate usage.
		pcts, err := cpu.PercentWithContext(ctx, interval, false)
		if err != nil || len(pcts) == 0 {
			continue
		}
		sum += pcts[0]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// gpuVirtualMarkers are renderer-name fragments that only show up inside
// VMs or on machines with no real GPU driver loaded.
var gpuVirtualMarkers = []string{
	"virtio",
	"vmware",
	"virtualbox",
	"vbox",
	"qxl",
	"llvmpipe",
	"parallels",
	"microsoft basic render",
	"microsoft basic display",
	"hyper-v",
}

// DetectVirtualization combines the CPU hypervisor flag, host platform
// identification, and GPU-model heuristics into a single verdict plus
// diagnostic tags. It errs toward flagging (false positives exclude data,
// which is the safe direction for a shared benchmark store).
func DetectVirtualization(hw domain.HardwareInfo) (bool, string) {
	var tags []string

	if hw.HypervisorFlag {
		tags = append(tags, "cpu:hypervisor-flag")
	}

	if info, err := host.Info(); err == nil {
		if info.VirtualizationRole == "guest" && info.VirtualizationSystem != "" {
			tags = append(tags, "host:"+info.VirtualizationSystem)
		}
		platform := strings.ToLower(info.Platform + " " + info.KernelVersion)
		if strings.Contains(platform, "microsoft") && strings.Contains(platform, "wsl") {
			tags = append(tags, "host:wsl")
		}
	}

	gpu := strings.ToLower(hw.GPUModel)
	for _, marker := range gpuVirtualMarkers {
		if gpu != "" && strings.Contains(gpu, marker) {
			tags = append(tags, "gpu:"+marker)
			break
		}
	}

	return len(tags) > 0, strings.Join(tags, ",")
}
