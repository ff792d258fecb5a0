package gate

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/platinumlabs/encbench/pkg/domain"
)

func defaultCfg() Config {
	return Config{Sigma: 3.0, LoadThresholdPercent: 20.0}
}

func sampleRecord(fps float64) domain.ResultRecord {
	return domain.ResultRecord{
		CPUModel: "AMD Ryzen 9 5950X",
		GPUModel: "NVIDIA GeForce RTX 3080",
		RAMGB:    64,
		OS:       "Linux 6.8",
		Codec:    "h264",
		Preset:   "medium",
		FPS:      fps,
	}
}

func peersWithFPS(fpsVals ...float64) []domain.BaselineSample {
	out := make([]domain.BaselineSample, 0, len(fpsVals))
	for _, v := range fpsVals {
		out = append(out, domain.BaselineSample{
			CPUModel: "AMD Ryzen 9 5950X",
			GPUModel: "NVIDIA GeForce RTX 3080",
			RAMGB:    64,
			OS:       "Linux 6.8",
			Codec:    "h264",
			Preset:   "medium",
			FPS:      v,
		})
	}
	return out
}

func TestEvaluateOrder(t *testing.T) {
	cfg := defaultCfg()
	// All three conditions bad at once: virtualization wins.
	d := Evaluate(cfg, sampleRecord(1000), 95.0, "cpu:hypervisor-flag", peersWithFPS(100, 101, 102, 103, 104))
	if !d.Skip || !strings.Contains(d.Reason, "virtualized") {
		t.Fatalf("decision = %+v, want virtualization skip", d)
	}

	// Load beats the z-score check.
	d = Evaluate(cfg, sampleRecord(1000), 95.0, "", peersWithFPS(100, 101, 102, 103, 104))
	if !d.Skip || !strings.Contains(d.Reason, "load") {
		t.Fatalf("decision = %+v, want load skip", d)
	}
}

func TestEvaluateLoadThreshold(t *testing.T) {
	cfg := defaultCfg()
	if d := Evaluate(cfg, sampleRecord(100), 20.0, "", nil); d.Skip {
		t.Errorf("load exactly at threshold must pass, got %+v", d)
	}
	if d := Evaluate(cfg, sampleRecord(100), 20.1, "", nil); !d.Skip {
		t.Error("load above threshold must skip")
	}
}

func TestEvaluateNoBaseline(t *testing.T) {
	d := Evaluate(defaultCfg(), sampleRecord(5), 0, "", nil)
	if d.Skip {
		t.Errorf("no baseline samples must never skip, got %+v", d)
	}
}

func TestEvaluateMismatchedBaselineIgnored(t *testing.T) {
	peers := peersWithFPS(100, 101, 102)
	for i := range peers {
		peers[i].Preset = "veryslow"
	}
	d := Evaluate(defaultCfg(), sampleRecord(5), 0, "", peers)
	if d.Skip {
		t.Errorf("samples under a different key must not apply, got %+v", d)
	}
}

func TestEvaluateZScoreBoundary(t *testing.T) {
	cfg := defaultCfg()
	// Peers 90..110 step 5: median 100, deviations {10,5,0,5,10}, MAD 5,
	// divisor 1.4826*5 = 7.413.
	peers := peersWithFPS(90, 95, 100, 105, 110)
	div := 1.4826 * 5

	justOver := 100 + 3.01*div
	if d := Evaluate(cfg, sampleRecord(justOver), 0, "", peers); !d.Skip {
		t.Error("z just over sigma must skip")
	}
	// Symmetric on the low side.
	if d := Evaluate(cfg, sampleRecord(100-3.01*div), 0, "", peers); !d.Skip {
		t.Error("large negative z must skip")
	}
	if d := Evaluate(cfg, sampleRecord(100), 0, "", peers); d.Skip {
		t.Errorf("value at median must pass, got %+v", d)
	}
}

func TestEvaluateZeroMAD(t *testing.T) {
	cfg := defaultCfg()
	peers := peersWithFPS(100, 100, 100, 100)

	// Divisor falls back to 1, so any deviation beyond sigma fps skips.
	if d := Evaluate(cfg, sampleRecord(104), 0, "", peers); !d.Skip {
		t.Error("deviation 4 with unit divisor must skip")
	}
	if d := Evaluate(cfg, sampleRecord(102), 0, "", peers); d.Skip {
		t.Errorf("deviation 2 with unit divisor must pass, got %+v", d)
	}
	// z lands exactly on sigma here; the threshold is strictly greater-than.
	if d := Evaluate(cfg, sampleRecord(103), 0, "", peers); d.Skip {
		t.Errorf("z exactly at sigma must pass, got %+v", d)
	}
}

func TestEvaluateVMAFMetric(t *testing.T) {
	cfg := defaultCfg()
	peers := peersWithFPS(100, 101, 102, 103, 104)
	for i := range peers {
		v := 93.0 + float64(i)*0.1
		peers[i].VMAF = &v
	}

	rec := sampleRecord(102)
	bad := 40.0
	rec.VMAF = &bad
	d := Evaluate(cfg, rec, 0, "", peers)
	if !d.Skip || !strings.Contains(d.Reason, "vmaf") {
		t.Fatalf("decision = %+v, want vmaf outlier skip", d)
	}
}

func TestEvaluateFileSizeMetric(t *testing.T) {
	cfg := defaultCfg()
	peers := peersWithFPS(100, 101, 102, 103, 104)
	for i := range peers {
		peers[i].FileSizeBytes = int64(1_000_000 + i*1000)
	}

	rec := sampleRecord(102)
	rec.FileSizeBytes = 50_000_000
	d := Evaluate(cfg, rec, 0, "", peers)
	if !d.Skip || !strings.Contains(d.Reason, "fileSize") {
		t.Fatalf("decision = %+v, want file-size outlier skip", d)
	}
}

func TestRobustZ(t *testing.T) {
	samples := []float64{90, 95, 100, 105, 110}
	if z := robustZ(100, samples); z != 0 {
		t.Errorf("z at median = %v, want 0", z)
	}
	want := 10 / (1.4826 * 5)
	if z := robustZ(110, samples); math.Abs(z-want) > 1e-9 {
		t.Errorf("z = %v, want %v", z, want)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []float64
		want float64
	}{
		{[]float64{3, 1, 2}, 2},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{7}, 7},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := median(tt.in); got != tt.want {
			t.Errorf("median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHTTPBaselineRepository(t *testing.T) {
	samples := peersWithFPS(100, 110)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/results" {
			t.Errorf("path = %q, want /results", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "500" {
			t.Errorf("limit = %q, want 500", got)
		}
		json.NewEncoder(w).Encode(samples)
	}))
	defer srv.Close()

	repo := &HTTPBaselineRepository{BaseURL: srv.URL, Limit: 500}
	got, err := repo.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].FPS != 110 {
		t.Fatalf("samples = %+v", got)
	}

	// Second call served from cache.
	if _, err := repo.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("collector hit %d times, want 1", calls)
	}
}

func TestHTTPBaselineRepositoryEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"results": peersWithFPS(42)})
	}))
	defer srv.Close()

	repo := &HTTPBaselineRepository{BaseURL: srv.URL, Limit: 100}
	got, err := repo.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].FPS != 42 {
		t.Fatalf("samples = %+v", got)
	}
}

func TestHTTPBaselineRepositoryErrorCached(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	repo := &HTTPBaselineRepository{BaseURL: srv.URL, Limit: 100}
	if _, err := repo.Fetch(context.Background()); err == nil {
		t.Fatal("want error on 500")
	}
	if _, err := repo.Fetch(context.Background()); err == nil {
		t.Fatal("cached fetch must also report the error")
	}
	if calls != 1 {
		t.Errorf("collector hit %d times, want 1", calls)
	}
}
