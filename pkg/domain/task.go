package domain

// Mode selects how the task matrix is expanded.
type Mode string

const (
	// ModeSingle runs exactly the encoder/preset/quality combinations the
	// user selected, one task each.
	ModeSingle Mode = "single"
	// ModeNarrow sweeps a small window around each encoder's middle preset.
	ModeNarrow Mode = "narrow"
	// ModeBroad sweeps all but the slowest presets.
	ModeBroad Mode = "broad"
	// ModeExhaustive sweeps every enumerable preset.
	ModeExhaustive Mode = "exhaustive"
)

// BenchmarkTask is one (encoder, preset, quality) trial. Tasks are immutable
// once built and consumed exactly once by the executor.
type BenchmarkTask struct {
	EncoderID string `json:"encoderId"`
	Preset    string `json:"preset"`
	// Quality is an encoder-specific CRF-style knob; nil means the
	// encoder's default.
	Quality *int `json:"quality,omitempty"`
}

// EncodeOutcome is the raw measurement produced by one encode invocation.
// The artifact lives inside the enclosing chunk's workspace and is gone
// once that chunk's scoring completes.
type EncodeOutcome struct {
	Task         BenchmarkTask
	ArtifactPath string
	// EncoderUsed may differ from Task.EncoderID after a software fallback.
	EncoderUsed string
	ElapsedMs   int64
	FPS         float64
	SizeBytes   int64
	// VMAF is set by the scoring stage; nil means no score was produced,
	// which is a valid outcome, not an error.
	VMAF *float64
	// BackgroundLoadPct is the CPU load sampled immediately before this
	// task's encode started.
	BackgroundLoadPct float64
	ErrorMessage      string
}

// Failed reports whether the encode produced nothing worth submitting:
// non-zero exit, empty or missing artifact, or zero measured rate.
func (o *EncodeOutcome) Failed() bool {
	return o.ErrorMessage != "" || o.FPS <= 0 || o.SizeBytes <= 0
}

// AttemptStatus classifies one task's journey through the executor.
type AttemptStatus string

const (
	// AttemptOK: requested encoder succeeded.
	AttemptOK AttemptStatus = "OK"
	// AttemptDegraded: requested encoder failed, software fallback succeeded.
	AttemptDegraded AttemptStatus = "DEGRADED"
	// AttemptFailed: both the requested encoder and the fallback failed.
	AttemptFailed AttemptStatus = "FAILED"
)

// Attempt pairs an outcome with how it was obtained. The executor branches
// on Status explicitly; a failed attempt never unwinds the batch loop.
type Attempt struct {
	Status  AttemptStatus
	Outcome EncodeOutcome
	// Note explains a degraded or failed attempt (fallback encoder used,
	// trailing ffmpeg stderr, ...).
	Note string
}
