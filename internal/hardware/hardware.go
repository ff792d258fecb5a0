// Package hardware builds the machine descriptor attached to every
// submitted result.
package hardware

import (
	"context"
	"math"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/platinumlabs/encbench/pkg/domain"
)

const probeTimeout = 5 * time.Second

// Detect gathers CPU model, RAM, OS and (best effort) GPU model. It never
// fails: unknown fields degrade to placeholders so a weird platform can
// still run benchmarks, and the gate key simply matches other machines
// reporting the same placeholders.
func Detect(ctx context.Context) domain.HardwareInfo {
	hw := domain.HardwareInfo{CPUModel: "Unknown CPU", OS: runtime.GOOS}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		if model := strings.TrimSpace(infos[0].ModelName); model != "" {
			hw.CPUModel = model
		}
		for _, f := range infos[0].Flags {
			if f == "hypervisor" {
				hw.HypervisorFlag = true
				break
			}
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hw.RAMGB = int(math.Round(float64(vm.Total) / (1 << 30)))
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		sys := strings.Title(info.OS)
		rel := info.PlatformVersion
		if rel == "" {
			rel = info.KernelVersion
		}
		hw.OS = strings.TrimSpace(sys + " " + rel)
	}

	if runtime.GOOS == "darwin" && strings.Contains(hw.CPUModel, "Apple") {
		if norm := normalizeAppleSilicon(hw.CPUModel); norm != "" {
			hw.CPUModel = norm
		}
		// Unified SoC: report the CPU label as the GPU (VideoToolbox path).
		hw.GPUModel = hw.CPUModel
	} else {
		hw.GPUModel = nvidiaGPUName(ctx)
	}

	return hw
}

var appleSiliconRe = regexp.MustCompile(`(?i)Apple\s+M\s*([0-9])\s*(Pro|Max|Ultra)?`)

// normalizeAppleSilicon collapses labels like "Apple M3 Pro 12-Core" into
// the canonical "Apple M3 Pro" so baseline keys from different macOS
// builds agree.
func normalizeAppleSilicon(label string) string {
	m := appleSiliconRe.FindStringSubmatch(label)
	if m == nil {
		return ""
	}
	parts := []string{"Apple", "M" + m[1]}
	if m[2] != "" {
		parts = append(parts, strings.Title(strings.ToLower(m[2])))
	}
	return strings.Join(parts, " ")
}

// nvidiaGPUName shells out to nvidia-smi, the same source GPUtil reads.
// Missing tool or any failure simply means no GPU model is reported.
func nvidiaGPUName(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}
