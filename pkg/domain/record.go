package domain

import "encoding/json"

// HardwareInfo identifies the machine a measurement was taken on. It is
// produced once at startup and treated as opaque by everything except the
// baseline key.
type HardwareInfo struct {
	CPUModel string `json:"cpuModel"`
	GPUModel string `json:"gpuModel,omitempty"`
	RAMGB    int    `json:"ramGB"`
	OS       string `json:"os"`
	// HypervisorFlag is set when the CPU reports the hypervisor capability
	// bit; consumed by virtualization detection.
	HypervisorFlag bool `json:"-"`
}

// ResultRecord is the unit submitted to the collector. Internally it may be
// built as a superset; Sanitize projects it down to the wire allow-list
// before any transmission or queue persistence.
type ResultRecord struct {
	CPUModel      string   `json:"cpuModel"`
	GPUModel      string   `json:"gpuModel,omitempty"`
	RAMGB         int      `json:"ramGB"`
	OS            string   `json:"os"`
	Codec         string   `json:"codec"`
	Preset        string   `json:"preset"`
	Quality       *int     `json:"quality,omitempty"`
	FPS           float64  `json:"fps"`
	FileSizeBytes int64    `json:"fileSizeBytes"`
	RunMs         int64    `json:"runMs"`
	VMAF          *float64 `json:"vmaf,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	FFmpegVersion string   `json:"ffmpegVersion,omitempty"`
	EncoderName   string   `json:"encoderName,omitempty"`
	ClientVersion string   `json:"clientVersion,omitempty"`
	InputHash     string   `json:"inputHash,omitempty"`
}

// allowedFields is the fixed outbound schema. Anything not listed here is
// stripped by Sanitize, on the direct-submit path and the retry-queue path
// alike, so a queued-and-resubmitted record is byte-identical to one
// submitted immediately.
var allowedFields = map[string]struct{}{
	"cpuModel":      {},
	"gpuModel":      {},
	"ramGB":         {},
	"os":            {},
	"codec":         {},
	"preset":        {},
	"quality":       {},
	"fps":           {},
	"fileSizeBytes": {},
	"runMs":         {},
	"vmaf":          {},
	"notes":         {},
	"ffmpegVersion": {},
	"encoderName":   {},
	"clientVersion": {},
	"inputHash":     {},
}

// Sanitize returns the record's wire form: compact JSON containing only
// allow-listed fields. The round trip through a generic map guards against
// future struct fields leaking onto the wire without an allow-list update.
func (r ResultRecord) Sanitize() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k := range m {
		if _, ok := allowedFields[k]; !ok {
			delete(m, k)
		}
	}
	return json.Marshal(m)
}

// BaselineKey selects historical samples comparable to a candidate record.
// All seven fields must match exactly.
type BaselineKey struct {
	CPUModel string
	GPUModel string
	RAMGB    int
	Codec    string
	Preset   string
	OS       string
	Quality  int
}

// BaselineSample is one historical row from the collector, used read-only
// by the outlier gate.
type BaselineSample struct {
	CPUModel      string   `json:"cpuModel"`
	GPUModel      string   `json:"gpuModel,omitempty"`
	RAMGB         int      `json:"ramGB"`
	OS            string   `json:"os"`
	Codec         string   `json:"codec"`
	Preset        string   `json:"preset"`
	Quality       *int     `json:"quality,omitempty"`
	FPS           float64  `json:"fps"`
	FileSizeBytes int64    `json:"fileSizeBytes"`
	VMAF          *float64 `json:"vmaf,omitempty"`
}

// Key returns the sample's baseline grouping key. A nil quality maps to -1
// so that "unset" only ever matches "unset".
func (s BaselineSample) Key() BaselineKey {
	return BaselineKey{
		CPUModel: s.CPUModel,
		GPUModel: s.GPUModel,
		RAMGB:    s.RAMGB,
		Codec:    s.Codec,
		Preset:   s.Preset,
		OS:       s.OS,
		Quality:  qualityOrSentinel(s.Quality),
	}
}

// Key returns the record's baseline grouping key.
func (r ResultRecord) Key() BaselineKey {
	return BaselineKey{
		CPUModel: r.CPUModel,
		GPUModel: r.GPUModel,
		RAMGB:    r.RAMGB,
		Codec:    r.Codec,
		Preset:   r.Preset,
		OS:       r.OS,
		Quality:  qualityOrSentinel(r.Quality),
	}
}

func qualityOrSentinel(q *int) int {
	if q == nil {
		return -1
	}
	return *q
}
