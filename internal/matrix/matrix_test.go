package matrix

import (
	"reflect"
	"testing"

	"github.com/platinumlabs/encbench/pkg/domain"
)

// fakeSource returns canned preset lists, already in fastest-to-slowest
// order, so SortPresetsBySpeed is the identity.
type fakeSource struct {
	presets map[string][]string
}

func (f *fakeSource) EnumeratePresets(enc string) []string { return f.presets[enc] }
func (f *fakeSource) SortPresetsBySpeed(_ string, p []string) []string {
	return p
}

func tenPresets() []string {
	return []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9"}
}

func presetsOf(tasks []domain.BenchmarkTask) []string {
	out := make([]string, 0, len(tasks))
	for _, tk := range tasks {
		out = append(out, tk.Preset)
	}
	return out
}

func TestNarrowTierMiddleWindow(t *testing.T) {
	src := &fakeSource{presets: map[string][]string{"libx264": tenPresets()}}
	tasks := Build(domain.ModeNarrow, []string{"libx264"}, nil, src)

	want := []string{"p2", "p3", "p4"}
	if got := presetsOf(tasks); !reflect.DeepEqual(got, want) {
		t.Errorf("narrow selection = %v, want %v", got, want)
	}
}

func TestNarrowTierShortLists(t *testing.T) {
	tests := []struct {
		name    string
		presets []string
		want    []string
	}{
		{"one preset", []string{"a"}, []string{"a"}},
		{"two presets", []string{"a", "b"}, []string{"a"}},
		{"three presets", []string{"a", "b", "c"}, []string{"a", "b"}},
		{"duplicates collapse", []string{"x", "x", "x", "y", "z"}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{presets: map[string][]string{"e": tt.presets}}
			got := presetsOf(Build(domain.ModeNarrow, []string{"e"}, nil, src))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("narrow(%v) = %v, want %v", tt.presets, got, tt.want)
			}
		})
	}
}

func TestBroadTierDropsSlowest(t *testing.T) {
	src := &fakeSource{presets: map[string][]string{"libx264": tenPresets()}}
	tasks := Build(domain.ModeBroad, []string{"libx264"}, nil, src)

	got := presetsOf(tasks)
	if len(got) != 8 {
		t.Fatalf("broad kept %d presets, want 8", len(got))
	}
	for _, p := range got {
		if p == "p8" || p == "p9" {
			t.Errorf("slowest preset %s should have been dropped", p)
		}
	}
}

func TestBroadTierKeepsAtLeastOne(t *testing.T) {
	src := &fakeSource{presets: map[string][]string{"e": {"only"}}}
	got := presetsOf(Build(domain.ModeBroad, []string{"e"}, nil, src))
	if !reflect.DeepEqual(got, []string{"only"}) {
		t.Errorf("broad(1 preset) = %v, want [only]", got)
	}
}

func TestExhaustiveTierKeepsAll(t *testing.T) {
	src := &fakeSource{presets: map[string][]string{"e": tenPresets()}}
	got := presetsOf(Build(domain.ModeExhaustive, []string{"e"}, nil, src))
	if !reflect.DeepEqual(got, tenPresets()) {
		t.Errorf("exhaustive = %v, want all presets in order", got)
	}
}

func TestBuildCrossProductOrderDeterministic(t *testing.T) {
	src := &fakeSource{presets: map[string][]string{
		"a": {"fast", "slow"},
		"b": {"fast", "slow"},
	}}
	first := Build(domain.ModeExhaustive, []string{"a", "b"}, []int{23, 28}, src)
	second := Build(domain.ModeExhaustive, []string{"a", "b"}, []int{23, 28}, src)
	if !reflect.DeepEqual(first, second) {
		t.Error("Build is not deterministic for fixed inputs")
	}

	if len(first) != 8 {
		t.Fatalf("len = %d, want 8 (2 qualities x 2 encoders x 2 presets)", len(first))
	}
	// Qualities outermost: the first four tasks carry quality 23.
	for i := 0; i < 4; i++ {
		if first[i].Quality == nil || *first[i].Quality != 23 {
			t.Errorf("task %d quality = %v, want 23", i, first[i].Quality)
		}
	}
	if first[0].EncoderID != "a" || first[2].EncoderID != "b" {
		t.Errorf("encoder order not preserved: %+v", first[:4])
	}
}

func TestBuildZeroPresetEncoderContributesNothing(t *testing.T) {
	src := &fakeSource{presets: map[string][]string{
		"good": {"fast"},
		"bare": {},
	}}
	tasks := Build(domain.ModeExhaustive, []string{"bare", "good"}, nil, src)
	if len(tasks) != 1 || tasks[0].EncoderID != "good" {
		t.Errorf("tasks = %+v, want single task for encoder good", tasks)
	}
}

func TestBuildSingleCopiesSelections(t *testing.T) {
	q := 23
	sel := []domain.BenchmarkTask{{EncoderID: "libx264", Preset: "medium", Quality: &q}}
	got := BuildSingle(sel)
	if !reflect.DeepEqual(got, sel) {
		t.Errorf("BuildSingle = %+v, want %+v", got, sel)
	}
	got[0].Preset = "mutated"
	if sel[0].Preset != "medium" {
		t.Error("BuildSingle must not alias the caller's slice")
	}
}
