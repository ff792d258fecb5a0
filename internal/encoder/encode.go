package encoder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const stderrTailLines = 5

// Encode runs one timed ffmpeg trial and measures throughput from the
// encoded frame count. Audio is stripped so the measurement reflects video
// encoding only. A non-nil error always carries the stderr tail in the
// returned Result for failure classification upstream.
func (f *FFmpeg) Encode(ctx context.Context, inputPath, outputPath, encoderID, preset string, quality *int) (Result, error) {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", inputPath,
		"-c:v", encoderID,
	}
	args = append(args, presetArgs(encoderID, preset)...)
	args = append(args, qualityArgs(encoderID, quality)...)
	if isHardwareEncoder(encoderID) {
		// Hardware paths reject odd dimensions and exotic pixel formats.
		args = append(args,
			"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
			"-pix_fmt", "yuv420p")
		if strings.HasSuffix(strings.ToLower(encoderID), "_videotoolbox") {
			// VideoToolbox has no CRF mode; pin a bitrate so trials compare.
			args = append(args, "-b:v", "5000k", "-maxrate", "6000k", "-bufsize", "8000k")
		}
	}
	args = append(args, "-an", outputPath)

	start := time.Now()
	stderr, err := runCaptured(ctx, f.EncodeTimeout, f.Verbose, f.Bin, args...)
	elapsed := time.Since(start)

	res := Result{ElapsedMs: elapsed.Milliseconds()}
	if err != nil {
		res.Stderr = stderrTail(stderr, stderrTailLines)
		return res, fmt.Errorf("encode %s preset=%s: %w", encoderID, preset, err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		res.Stderr = stderrTail(stderr, stderrTailLines)
		return res, fmt.Errorf("encode %s preset=%s: empty output", encoderID, preset)
	}
	res.SizeBytes = info.Size()

	frames, err := f.countFrames(ctx, outputPath)
	if err != nil {
		return res, fmt.Errorf("probe %s: %w", outputPath, err)
	}
	if sec := elapsed.Seconds(); sec > 0 {
		res.FPS = float64(frames) / sec
	}
	return res, nil
}

// countFrames decodes the output once so the frame count is exact, not the
// container's advertised value.
func (f *FFmpeg) countFrames(ctx context.Context, path string) (int64, error) {
	if f.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.ScoreTimeout)
		defer cancel()
	}
	out, err := runQuiet(ctx, f.ProbeBin,
		"-v", "error",
		"-count_frames",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_read_frames",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q", strings.TrimSpace(out))
	}
	return n, nil
}
