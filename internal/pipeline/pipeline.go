// Package pipeline drives a benchmark session: chunked sequential encodes,
// concurrent quality scoring, integrity gating, and delivery.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinumlabs/encbench/internal/encoder"
	"github.com/platinumlabs/encbench/internal/gate"
	"github.com/platinumlabs/encbench/internal/metrics"
	"github.com/platinumlabs/encbench/internal/queue"
	"github.com/platinumlabs/encbench/internal/resources"
	"github.com/platinumlabs/encbench/pkg/domain"
)

// Submitter delivers one accepted record. *submit.Client is the real
// implementation.
type Submitter interface {
	Submit(ctx context.Context, rec domain.ResultRecord) error
}

// Pipeline holds the collaborators for one session. Fields are set once
// before Run and never mutated afterwards.
type Pipeline struct {
	Enc      encoder.Encoder
	Gate     gate.Config
	Baseline gate.BaselineRepository
	Client   Submitter
	Queue    queue.Store

	HW       domain.HardwareInfo
	VirtTags string

	InputPath     string
	InputHash     string
	FFmpegVersion string
	ClientVersion string

	Workers          int
	LoadSampleWindow time.Duration
	DisableVMAF      bool
	// WorkspaceRoot is the parent for per-chunk scratch directories;
	// empty means the OS temp dir.
	WorkspaceRoot string

	// Progress, when set, receives scoring progress per chunk.
	Progress func(done, total int)

	Logger *slog.Logger

	now func() time.Time
}

// RunStats summarizes one session for the CLI's closing report.
type RunStats struct {
	Tasks     int
	Encoded   int
	Fallbacks int
	Failed    int
	Scored    int
	Submitted int
	Queued    int
	Skipped   int
	Elapsed   time.Duration
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Run executes the task list chunk by chunk. Chunk N+1 never starts
// before chunk N is fully scored, delivered, and its workspace removed.
// Only a cancelled context or an unusable workspace stops the batch;
// individual task failures are recorded and skipped past.
func (p *Pipeline) Run(ctx context.Context, tasks []domain.BenchmarkTask) (RunStats, error) {
	start := p.clock()
	stats := RunStats{Tasks: len(tasks)}
	tracer := otel.Tracer("encbench/pipeline")

	chunkSize := p.Workers
	if chunkSize < 1 {
		chunkSize = 1
	}

	for offset := 0; offset < len(tasks); offset += chunkSize {
		if ctx.Err() != nil {
			stats.Elapsed = p.clock().Sub(start)
			return stats, ctx.Err()
		}
		end := offset + chunkSize
		if end > len(tasks) {
			end = len(tasks)
		}
		chunk := tasks[offset:end]

		chunkCtx, span := tracer.Start(ctx, "chunk", trace.WithAttributes(
			attribute.Int("chunk.offset", offset),
			attribute.Int("chunk.size", len(chunk)),
		))
		err := p.runChunk(chunkCtx, chunk, &stats)
		span.End()
		if err != nil {
			stats.Elapsed = p.clock().Sub(start)
			return stats, err
		}
	}

	stats.Elapsed = p.clock().Sub(start)
	return stats, nil
}

func (p *Pipeline) runChunk(ctx context.Context, chunk []domain.BenchmarkTask, stats *RunStats) error {
	ws, err := os.MkdirTemp(p.WorkspaceRoot, "encbench-chunk-*")
	if err != nil {
		return fmt.Errorf("chunk workspace: %w", err)
	}
	defer os.RemoveAll(ws)

	// Encode phase: strictly sequential; the engine saturates the machine
	// per invocation.
	attempts := make([]domain.Attempt, len(chunk))
	for i, task := range chunk {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		load := resources.SampleBackgroundLoad(ctx, p.LoadSampleWindow, 0)
		attempts[i] = p.encodeOne(ctx, ws, i, task, load)
		switch attempts[i].Status {
		case domain.AttemptOK:
			stats.Encoded++
		case domain.AttemptDegraded:
			stats.Encoded++
			stats.Fallbacks++
		case domain.AttemptFailed:
			stats.Failed++
		}
	}

	p.scoreChunk(ctx, attempts, stats)

	for i := range attempts {
		p.deliver(ctx, &attempts[i], stats)
	}
	return nil
}

// encodeOne runs the requested encoder and, when a hardware encoder
// produces nothing usable, retries once on the family's best software
// encoder.
func (p *Pipeline) encodeOne(ctx context.Context, ws string, idx int, task domain.BenchmarkTask, load float64) domain.Attempt {
	outcome := p.tryEncode(ctx, ws, idx, task.EncoderID, task, load)
	if !outcome.Failed() {
		metrics.EncodesTotal.WithLabelValues(task.EncoderID, "ok").Inc()
		return domain.Attempt{Status: domain.AttemptOK, Outcome: outcome}
	}
	metrics.EncodesTotal.WithLabelValues(task.EncoderID, "error").Inc()

	if p.Enc.IsHardware(task.EncoderID) {
		if fb, ok := p.Enc.SoftwareFallback(task.EncoderID); ok {
			p.logger().Warn("hardware encoder failed, retrying on software",
				"encoder", task.EncoderID, "fallback", fb, "error", outcome.ErrorMessage)
			retry := p.tryEncode(ctx, ws, idx, fb, task, load)
			if !retry.Failed() {
				metrics.EncodesTotal.WithLabelValues(fb, "ok").Inc()
				metrics.FallbacksTotal.WithLabelValues(task.EncoderID, fb).Inc()
				return domain.Attempt{
					Status:  domain.AttemptDegraded,
					Outcome: retry,
					Note:    fmt.Sprintf("hardware encoder %s failed; used %s", task.EncoderID, fb),
				}
			}
			metrics.EncodesTotal.WithLabelValues(fb, "error").Inc()
			outcome = retry
		}
	}

	p.logger().Error("encode failed",
		"encoder", outcome.EncoderUsed, "preset", task.Preset, "error", outcome.ErrorMessage)
	return domain.Attempt{Status: domain.AttemptFailed, Outcome: outcome, Note: outcome.ErrorMessage}
}

func (p *Pipeline) tryEncode(ctx context.Context, ws string, idx int, encoderID string, task domain.BenchmarkTask, load float64) domain.EncodeOutcome {
	ctx, span := otel.Tracer("encbench/pipeline").Start(ctx, "encode", trace.WithAttributes(
		attribute.String("encoder", encoderID),
		attribute.String("preset", task.Preset),
	))
	defer span.End()

	out := filepath.Join(ws, fmt.Sprintf("%03d-%s-%s.mkv", idx, encoderID, task.Preset))
	res, err := p.Enc.Encode(ctx, p.InputPath, out, encoderID, task.Preset, task.Quality)
	outcome := domain.EncodeOutcome{
		Task:              task,
		ArtifactPath:      out,
		EncoderUsed:       encoderID,
		ElapsedMs:         res.ElapsedMs,
		FPS:               res.FPS,
		SizeBytes:         res.SizeBytes,
		BackgroundLoadPct: load,
	}
	metrics.EncodeSeconds.WithLabelValues(encoderID).Observe(float64(res.ElapsedMs) / 1000)
	if err != nil {
		outcome.ErrorMessage = err.Error()
		if res.Stderr != "" {
			outcome.ErrorMessage = outcome.ErrorMessage + ": " + res.Stderr
		}
	}
	return outcome
}

// scoreChunk fans the chunk's artifacts across the scoring pool. Results
// are paired back to their attempt by index, never by completion order.
func (p *Pipeline) scoreChunk(ctx context.Context, attempts []domain.Attempt, stats *RunStats) {
	if p.DisableVMAF {
		return
	}

	type job struct{ idx int }
	var scorable []job
	for i := range attempts {
		if attempts[i].Status != domain.AttemptFailed {
			scorable = append(scorable, job{idx: i})
		}
	}
	if len(scorable) == 0 {
		return
	}

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan job)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				scoreCtx, span := otel.Tracer("encbench/pipeline").Start(ctx, "score")
				score, err := p.Enc.Score(scoreCtx, p.InputPath, attempts[j.idx].Outcome.ArtifactPath)
				span.End()
				mu.Lock()
				if err != nil {
					p.logger().Warn("scoring failed",
						"artifact", attempts[j.idx].Outcome.ArtifactPath, "error", err)
					metrics.ScoresTotal.WithLabelValues("error").Inc()
				} else if score != nil {
					attempts[j.idx].Outcome.VMAF = score
					stats.Scored++
					metrics.ScoresTotal.WithLabelValues("ok").Inc()
				} else {
					metrics.ScoresTotal.WithLabelValues("unavailable").Inc()
				}
				done++
				if p.Progress != nil {
					p.Progress(done, len(scorable))
				}
				mu.Unlock()
			}
		}()
	}
	for _, j := range scorable {
		jobs <- j
	}
	close(jobs)
	wg.Wait()
}

// deliver turns one attempt into a record and routes it: gate-skipped,
// submitted, or queued for retry. Failed attempts are logged and dropped;
// malformed data never goes to the collector.
func (p *Pipeline) deliver(ctx context.Context, attempt *domain.Attempt, stats *RunStats) {
	if attempt.Status == domain.AttemptFailed {
		return
	}
	rec := p.buildRecord(attempt)

	baseline, err := p.fetchBaseline(ctx)
	if err != nil {
		p.logger().Warn("baseline unavailable, outlier check skipped", "error", err)
	}
	decision := gate.Evaluate(p.Gate, rec, attempt.Outcome.BackgroundLoadPct, p.VirtTags, baseline)
	if decision.Skip {
		p.logger().Info("result withheld", "encoder", rec.EncoderName,
			"preset", rec.Preset, "reason", decision.Reason)
		metrics.GateSkipsTotal.WithLabelValues(skipReasonLabel(decision.Reason)).Inc()
		stats.Skipped++
		return
	}

	submitCtx, span := otel.Tracer("encbench/pipeline").Start(ctx, "submit", trace.WithAttributes(
		attribute.String("encoder", rec.EncoderName),
		attribute.String("preset", rec.Preset),
	))
	err = p.Client.Submit(submitCtx, rec)
	span.End()
	if err != nil {
		p.logger().Warn("submission failed, queueing for retry",
			"encoder", rec.EncoderName, "preset", rec.Preset, "error", err)
		metrics.SubmissionsTotal.WithLabelValues("error").Inc()
		p.enqueue(ctx, rec)
		stats.Queued++
		return
	}
	metrics.SubmissionsTotal.WithLabelValues("ok").Inc()
	stats.Submitted++
}

func (p *Pipeline) buildRecord(attempt *domain.Attempt) domain.ResultRecord {
	o := &attempt.Outcome
	codec := o.EncoderUsed
	if family, ok := encoder.FamilyOf(o.EncoderUsed); ok {
		codec = family
	}
	return domain.ResultRecord{
		CPUModel:      p.HW.CPUModel,
		GPUModel:      p.HW.GPUModel,
		RAMGB:         p.HW.RAMGB,
		OS:            p.HW.OS,
		Codec:         codec,
		Preset:        o.Task.Preset,
		Quality:       o.Task.Quality,
		FPS:           o.FPS,
		FileSizeBytes: o.SizeBytes,
		RunMs:         o.ElapsedMs,
		VMAF:          o.VMAF,
		Notes:         attempt.Note,
		FFmpegVersion: p.FFmpegVersion,
		EncoderName:   o.EncoderUsed,
		ClientVersion: p.ClientVersion,
		InputHash:     p.InputHash,
	}
}

func (p *Pipeline) fetchBaseline(ctx context.Context) ([]domain.BaselineSample, error) {
	if p.Baseline == nil {
		return nil, nil
	}
	return p.Baseline.Fetch(ctx)
}

func (p *Pipeline) enqueue(ctx context.Context, rec domain.ResultRecord) {
	if p.Queue == nil {
		return
	}
	payload, err := rec.Sanitize()
	if err != nil {
		p.logger().Error("refusing to queue malformed record", "error", err)
		return
	}
	item := queue.Item{Name: queue.ItemName(rec.Preset, p.clock()), Payload: payload}
	if err := p.Queue.Put(ctx, item); err != nil {
		p.logger().Error("queueing failed, result lost", "item", item.Name, "error", err)
	}
}

func skipReasonLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "virtualized"):
		return "virtualization"
	case strings.HasPrefix(reason, "background"):
		return "load"
	default:
		return "outlier"
	}
}

// HashInput fingerprints the reference clip so records from different
// inputs never get compared as baselines.
func HashInput(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
