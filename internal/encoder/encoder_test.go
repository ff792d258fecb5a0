package encoder

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeFamily(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"h264", "h264", true},
		{"H.264", "h264", true},
		{"avc", "h264", true},
		{"libx264", "h264", true},
		{"x265", "hevc", true},
		{"HEVC", "hevc", true},
		{"av1", "av1", true},
		{"svt-av1", "av1", true},
		{"libaom-av1", "av1", true},
		{"vp9", "vp9", true},
		{"libvpx-vp9", "vp9", true},
		{"  h265  ", "hevc", true},
		{"mpeg2", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeFamily(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeFamily(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFamilyOf(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"libx264", "h264", true},
		{"libx265", "hevc", true},
		{"libsvtav1", "av1", true},
		{"libaom-av1", "av1", true},
		{"libvpx-vp9", "vp9", true},
		{"h264_nvenc", "h264", true},
		{"hevc_videotoolbox", "hevc", true},
		{"av1_qsv", "av1", true},
		{"vp9_vaapi", "vp9", true},
		{"copy", "", false},
	}
	for _, tt := range tests {
		got, ok := FamilyOf(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("FamilyOf(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsHardwareEncoder(t *testing.T) {
	hard := []string{"h264_nvenc", "hevc_qsv", "av1_amf", "h264_videotoolbox", "vp9_vaapi"}
	soft := []string{"libx264", "libx265", "libsvtav1", "libaom-av1", "libvpx-vp9"}
	for _, e := range hard {
		if !isHardwareEncoder(e) {
			t.Errorf("isHardwareEncoder(%q) = false, want true", e)
		}
	}
	for _, e := range soft {
		if isHardwareEncoder(e) {
			t.Errorf("isHardwareEncoder(%q) = true, want false", e)
		}
	}
}

func TestEnumeratePresets(t *testing.T) {
	f := New(time.Minute, time.Minute, false)

	x264 := f.EnumeratePresets("libx264")
	if len(x264) != 10 || x264[0] != "ultrafast" || x264[9] != "placebo" {
		t.Errorf("libx264 presets = %v", x264)
	}
	nvenc := f.EnumeratePresets("hevc_nvenc")
	if len(nvenc) != 7 || nvenc[0] != "p7" || nvenc[6] != "p1" {
		t.Errorf("nvenc presets = %v", nvenc)
	}
	if got := f.EnumeratePresets("h264_videotoolbox"); len(got) != 0 {
		t.Errorf("videotoolbox presets = %v, want none", got)
	}
	if got := f.EnumeratePresets("libsvtav1"); got[0] != "13" || got[len(got)-1] != "0" {
		t.Errorf("svtav1 presets = %v", got)
	}
}

func TestEnumeratePresetsReturnsCopy(t *testing.T) {
	f := New(time.Minute, time.Minute, false)
	a := f.EnumeratePresets("libx264")
	a[0] = "mutated"
	b := f.EnumeratePresets("libx264")
	if b[0] != "ultrafast" {
		t.Error("EnumeratePresets must return a fresh slice")
	}
}

func TestSortPresetsBySpeed(t *testing.T) {
	f := New(time.Minute, time.Minute, false)

	got := f.SortPresetsBySpeed("libx264", []string{"slow", "ultrafast", "medium"})
	want := []string{"ultrafast", "medium", "slow"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sorted = %v, want %v", got, want)
	}

	// Unknown presets keep their relative order at the end.
	got = f.SortPresetsBySpeed("libx264", []string{"custom-b", "fast", "custom-a", "veryfast"})
	want = []string{"veryfast", "fast", "custom-b", "custom-a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sorted with unknowns = %v, want %v", got, want)
	}

	got = f.SortPresetsBySpeed("h264_nvenc", []string{"p1", "p7", "p4"})
	want = []string{"p7", "p4", "p1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("nvenc sorted = %v, want %v", got, want)
	}
}

func TestPresetArgs(t *testing.T) {
	tests := []struct {
		encoder string
		preset  string
		want    []string
	}{
		{"libx264", "slow", []string{"-preset", "slow"}},
		{"libx265", "", []string{"-preset", "medium"}},
		{"libsvtav1", "8", []string{"-preset", "8"}},
		{"libaom-av1", "6", []string{"-cpu-used", "6", "-row-mt", "1"}},
		{"libvpx-vp9", "4", []string{"-deadline", "good", "-cpu-used", "4"}},
		{"h264_nvenc", "p5", []string{"-preset", "p5"}},
		{"hevc_qsv", "fast", []string{"-preset", "fast"}},
		{"av1_amf", "balanced", []string{"-quality", "balanced"}},
		{"h264_videotoolbox", "anything", nil},
	}
	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			if got := presetArgs(tt.encoder, tt.preset); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("presetArgs(%q, %q) = %v, want %v", tt.encoder, tt.preset, got, tt.want)
			}
		})
	}
}

func TestQualityArgs(t *testing.T) {
	q := 28
	tests := []struct {
		encoder string
		quality *int
		want    []string
	}{
		{"libx264", &q, []string{"-crf", "28"}},
		{"libsvtav1", &q, []string{"-crf", "28"}},
		{"libaom-av1", &q, []string{"-crf", "28", "-b:v", "0"}},
		{"libvpx-vp9", &q, []string{"-crf", "28", "-b:v", "0"}},
		{"hevc_nvenc", &q, []string{"-cq", "28"}},
		{"h264_qsv", &q, []string{"-global_quality", "28"}},
		{"h264_videotoolbox", &q, nil},
		{"libx264", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.encoder, func(t *testing.T) {
			if got := qualityArgs(tt.encoder, tt.quality); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("qualityArgs(%q) = %v, want %v", tt.encoder, got, tt.want)
			}
		})
	}
}

func TestStderrTail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"one line", "boom\n", "boom"},
		{"truncates", "a\nb\nc\nd\ne\nf\ng\n", "c; d; e; f; g"},
		{"skips blanks", "a\n\n  \nb\n", "a; b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stderrTail(tt.in, 5); got != tt.want {
				t.Errorf("stderrTail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestVMAFScoreRegex(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"pooled mean", `"vmaf": {"min": 80.1, "max": 99.2, "mean": 93.478112, "harmonic_mean": 93.1}`, "93.478112"},
		{"legacy label", `[libvmaf] VMAF score: unused {"VMAF score": 95.5}`, "95.5"},
		{"snake label", `{"VMAF_score": 88.25}`, "88.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := vmafScoreRe.FindStringSubmatch(tt.in)
			if m == nil {
				t.Fatalf("no match in %q", tt.in)
			}
			got := m[1]
			if got == "" {
				got = m[2]
			}
			if got == "" {
				got = m[3]
			}
			if got != tt.want {
				t.Errorf("score = %q, want %q", got, tt.want)
			}
		})
	}
}
