package encoder

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

var vmafScoreRe = regexp.MustCompile(`"vmaf"[^}]*?"mean"\s*:\s*([0-9.]+)|"VMAF score"\s*:\s*([0-9.]+)|"VMAF_score"\s*:\s*([0-9.]+)`)

// Score computes VMAF for candidatePath against referencePath. A nil score
// with a nil error means this ffmpeg build lacks libvmaf; the trial is
// still valid, it just ships without a quality number.
func (f *FFmpeg) Score(ctx context.Context, referencePath, candidatePath string) (*float64, error) {
	if !f.HasLibVMAF(ctx) {
		return nil, nil
	}

	// libvmaf writes its JSON report to the log path; "-" routes it to
	// stderr alongside any diagnostics, so parse the combined text.
	stderr, err := runCaptured(ctx, f.ScoreTimeout, false, f.Bin,
		"-hide_banner", "-nostdin",
		"-i", candidatePath,
		"-i", referencePath,
		"-lavfi", "libvmaf=log_fmt=json:log_path=-",
		"-f", "null", "-")
	if err != nil {
		return nil, fmt.Errorf("vmaf: %w", err)
	}

	m := vmafScoreRe.FindStringSubmatch(stderr)
	if m == nil {
		return nil, fmt.Errorf("vmaf: no score in ffmpeg output")
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	if raw == "" {
		raw = m[3]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("vmaf: bad score %q", raw)
	}
	return &v, nil
}
