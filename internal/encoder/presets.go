package encoder

import (
	"regexp"
	"strconv"
	"strings"
)

// codecAliases maps user spellings to a codec family.
var codecAliases = map[string]string{
	"h264": "h264", "h.264": "h264", "avc": "h264", "x264": "h264", "libx264": "h264",
	"h265": "hevc", "h.265": "hevc", "hevc": "hevc", "x265": "hevc", "libx265": "hevc",
	"av1": "av1", "libaom": "av1", "libaom-av1": "av1", "svt": "av1", "svt-av1": "av1", "libsvtav1": "av1",
	"vp9": "vp9", "libvpx": "vp9", "libvpx-vp9": "vp9",
}

// hardwareCandidates lists ffmpeg hardware encoders per family with a
// friendly engine label, in preference order.
var hardwareCandidates = map[string][][2]string{
	"h264": {
		{"h264_nvenc", "NVENC"},
		{"h264_qsv", "Intel QSV"},
		{"h264_amf", "AMD AMF"},
		{"h264_videotoolbox", "VideoToolbox"},
		{"h264_vaapi", "VAAPI"},
	},
	"hevc": {
		{"hevc_nvenc", "NVENC"},
		{"hevc_qsv", "Intel QSV"},
		{"hevc_amf", "AMD AMF"},
		{"hevc_videotoolbox", "VideoToolbox"},
		{"hevc_vaapi", "VAAPI"},
	},
	"av1": {
		{"av1_nvenc", "NVENC"},
		{"av1_qsv", "Intel QSV"},
		{"av1_amf", "AMD AMF"},
		{"av1_videotoolbox", "VideoToolbox"},
		{"av1_vaapi", "VAAPI"},
	},
	"vp9": {
		{"vp9_qsv", "Intel QSV"},
		{"vp9_vaapi", "VAAPI"},
	},
}

// softwareOrder lists software encoders per family, best first.
var softwareOrder = map[string][]string{
	"h264": {"libx264"},
	"hevc": {"libx265"},
	"av1":  {"libsvtav1", "libaom-av1"},
	"vp9":  {"libvpx-vp9"},
}

var hwSuffixes = []string{"_nvenc", "_qsv", "_amf", "_videotoolbox", "_vaapi"}

// presetVocabulary enumerates each encoder's presets fastest-to-slowest.
// Encoders with no preset concept (VideoToolbox, VAAPI) map to an empty
// list and therefore contribute no sweep tasks.
var presetVocabulary = map[string][]string{
	"libx264": {"ultrafast", "superfast", "veryfast", "faster", "fast",
		"medium", "slow", "slower", "veryslow", "placebo"},
	"libx265": {"ultrafast", "superfast", "veryfast", "faster", "fast",
		"medium", "slow", "slower", "veryslow", "placebo"},
	// SVT-AV1 numeric presets, higher = faster.
	"libsvtav1": {"13", "12", "11", "10", "9", "8", "7", "6", "5", "4", "3", "2", "1", "0"},
	// libaom cpu-used, higher = faster.
	"libaom-av1": {"8", "7", "6", "5", "4", "3", "2", "1", "0"},
	// libvpx-vp9 cpu-used with -deadline good.
	"libvpx-vp9": {"8", "7", "6", "5", "4", "3", "2", "1", "0"},
	"h264_qsv":   {"veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow"},
	"hevc_qsv":   {"veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow"},
	"av1_qsv":    {"veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow"},
	"vp9_qsv":    {"veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow"},
	"h264_amf":   {"speed", "balanced", "quality"},
	"hevc_amf":   {"speed", "balanced", "quality"},
	"av1_amf":    {"speed", "balanced", "quality"},
}

var nvencPresets = []string{"p7", "p6", "p5", "p4", "p3", "p2", "p1"}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeFamily resolves a user-supplied codec spelling to a family
// (h264, hevc, av1, vp9). Returns false for unknown input.
func NormalizeFamily(userInput string) (string, bool) {
	key := nonAlnumRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(userInput)), "")
	// The alias table is keyed on spellings that may contain separators;
	// strip those the same way before lookup.
	for alias, family := range codecAliases {
		if nonAlnumRe.ReplaceAllString(alias, "") == key {
			return family, true
		}
	}
	return "", false
}

// HardwareCandidates returns (encoder, engine label) pairs for a family.
func HardwareCandidates(family string) [][2]string {
	return hardwareCandidates[family]
}

// SoftwareOrder returns the family's software encoders, best first.
func SoftwareOrder(family string) []string {
	return softwareOrder[family]
}

// FamilyOf maps an ffmpeg encoder name back to its codec family.
func FamilyOf(encoderID string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(encoderID))
	for family, sws := range softwareOrder {
		for _, sw := range sws {
			if sw == e {
				return family, true
			}
		}
	}
	for _, family := range []string{"h264", "hevc", "av1", "vp9"} {
		if strings.HasPrefix(e, family+"_") {
			return family, true
		}
	}
	return "", false
}

func isHardwareEncoder(encoderID string) bool {
	e := strings.ToLower(strings.TrimSpace(encoderID))
	for _, suffix := range hwSuffixes {
		if strings.HasSuffix(e, suffix) {
			return true
		}
	}
	return false
}

// EnumeratePresets returns encoderID's full preset set, fastest first.
func (f *FFmpeg) EnumeratePresets(encoderID string) []string {
	e := strings.ToLower(strings.TrimSpace(encoderID))
	if strings.HasSuffix(e, "_nvenc") {
		return append([]string(nil), nvencPresets...)
	}
	return append([]string(nil), presetVocabulary[e]...)
}

// SortPresetsBySpeed orders presets fastest-to-slowest using the encoder's
// canonical vocabulary. Presets outside the vocabulary keep their relative
// order at the end, so a user-supplied custom preset still gets a slot.
func (f *FFmpeg) SortPresetsBySpeed(encoderID string, presets []string) []string {
	canon := f.EnumeratePresets(encoderID)
	rank := make(map[string]int, len(canon))
	for i, p := range canon {
		rank[p] = i
	}

	known := make([]string, 0, len(presets))
	var unknown []string
	for _, p := range presets {
		if _, ok := rank[p]; ok {
			known = append(known, p)
		} else {
			unknown = append(unknown, p)
		}
	}
	// Insertion sort keeps equal-rank entries stable; preset lists are tiny.
	for i := 1; i < len(known); i++ {
		for j := i; j > 0 && rank[known[j]] < rank[known[j-1]]; j-- {
			known[j], known[j-1] = known[j-1], known[j]
		}
	}
	return append(known, unknown...)
}

// presetArgs translates a preset name into encoder-specific ffmpeg flags.
func presetArgs(encoderID, preset string) []string {
	name := strings.ToLower(strings.TrimSpace(preset))
	if name == "" {
		name = "medium"
	}
	e := strings.ToLower(strings.TrimSpace(encoderID))

	switch {
	case e == "libx264" || e == "libx265":
		return []string{"-preset", name}
	case e == "libsvtav1":
		return []string{"-preset", name}
	case e == "libaom-av1":
		return []string{"-cpu-used", name, "-row-mt", "1"}
	case e == "libvpx-vp9":
		return []string{"-deadline", "good", "-cpu-used", name}
	case strings.HasSuffix(e, "_nvenc"):
		return []string{"-preset", name}
	case strings.HasSuffix(e, "_qsv"):
		return []string{"-preset", name}
	case strings.HasSuffix(e, "_amf"):
		return []string{"-quality", name}
	}
	// VideoToolbox and friends: no preset knob.
	return nil
}

// qualityArgs translates the optional CRF-style quality knob.
func qualityArgs(encoderID string, quality *int) []string {
	if quality == nil {
		return nil
	}
	q := strconv.Itoa(*quality)
	e := strings.ToLower(strings.TrimSpace(encoderID))
	switch {
	case e == "libx264" || e == "libx265" || e == "libsvtav1":
		return []string{"-crf", q}
	case e == "libaom-av1" || e == "libvpx-vp9":
		return []string{"-crf", q, "-b:v", "0"}
	case strings.HasSuffix(e, "_nvenc"):
		return []string{"-cq", q}
	case strings.HasSuffix(e, "_qsv"):
		return []string{"-global_quality", q}
	}
	return nil
}
