// Package encoder wraps ffmpeg as the encoding and quality-scoring
// collaborator: encoder discovery, preset vocabularies, timed encodes and
// VMAF scoring.
package encoder

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Result is the raw measurement from one encode invocation.
type Result struct {
	ElapsedMs int64
	FPS       float64
	SizeBytes int64
	// Stderr holds the trailing ffmpeg output when the invocation failed.
	Stderr string
}

// Encoder is the capability the pipeline consumes. *FFmpeg is the real
// implementation; tests substitute fakes.
type Encoder interface {
	Encode(ctx context.Context, inputPath, outputPath, encoderID, preset string, quality *int) (Result, error)
	Score(ctx context.Context, referencePath, candidatePath string) (*float64, error)
	EnumeratePresets(encoderID string) []string
	SortPresetsBySpeed(encoderID string, presets []string) []string
	SoftwareFallback(encoderID string) (string, bool)
	IsHardware(encoderID string) bool
}

// FFmpeg runs the system ffmpeg/ffprobe binaries. Encoder-availability
// probing is cached for the life of the instance; construct one per
// pipeline so tests never share probe state.
type FFmpeg struct {
	Bin           string
	ProbeBin      string
	EncodeTimeout time.Duration
	ScoreTimeout  time.Duration
	Verbose       bool

	mu           sync.Mutex
	encoderList  string
	filterList   string
	probedTools  bool
	versionLine  string
	toolsPresent bool
}

// New returns an FFmpeg bound to the binaries on PATH.
func New(encodeTimeout, scoreTimeout time.Duration, verbose bool) *FFmpeg {
	return &FFmpeg{
		Bin:           "ffmpeg",
		ProbeBin:      "ffprobe",
		EncodeTimeout: encodeTimeout,
		ScoreTimeout:  scoreTimeout,
		Verbose:       verbose,
	}
}

// Preflight verifies ffmpeg and ffprobe exist and returns ffmpeg's version
// line. Checked once, at the top of a run; missing tools are the only
// error that should stop a batch before it starts.
func (f *FFmpeg) Preflight(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probedTools {
		return f.versionLine, f.toolsPresent
	}
	f.probedTools = true

	out, err := runQuiet(ctx, f.Bin, "-version")
	if err != nil {
		return "", false
	}
	if _, err := runQuiet(ctx, f.ProbeBin, "-version"); err != nil {
		return "", false
	}

	if lines := strings.SplitN(out, "\n", 2); len(lines) > 0 {
		f.versionLine = strings.TrimSpace(lines[0])
	}
	f.toolsPresent = true
	return f.versionLine, true
}

// HasEncoder reports whether this ffmpeg build ships the named encoder.
// The -encoders listing is fetched once and cached.
func (f *FFmpeg) HasEncoder(ctx context.Context, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.encoderList == "" {
		out, err := runQuiet(ctx, f.Bin, "-hide_banner", "-encoders")
		if err != nil {
			return false
		}
		f.encoderList = out
	}
	return strings.Contains(f.encoderList, name)
}

// HasLibVMAF reports whether the libvmaf filter is available.
func (f *FFmpeg) HasLibVMAF(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filterList == "" {
		out, err := runQuiet(ctx, f.Bin, "-hide_banner", "-filters")
		if err != nil {
			return false
		}
		f.filterList = out
	}
	return strings.Contains(f.filterList, "libvmaf")
}

// SoftwareFallback returns the best available software encoder for the
// codec family of encoderID, for the retry-on-hardware-failure path.
func (f *FFmpeg) SoftwareFallback(encoderID string) (string, bool) {
	family, ok := FamilyOf(encoderID)
	if !ok {
		return "", false
	}
	for _, sw := range softwareOrder[family] {
		if sw == encoderID {
			continue
		}
		if f.HasEncoder(context.Background(), sw) {
			return sw, true
		}
	}
	return "", false
}

// IsHardware reports whether encoderID belongs to a hardware-accelerated
// family (and is therefore eligible for a software fallback retry).
func (f *FFmpeg) IsHardware(encoderID string) bool { return isHardwareEncoder(encoderID) }
