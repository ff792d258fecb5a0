package encoder

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// runQuiet runs a tool and returns combined stdout, discarding stderr.
func runQuiet(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return out.String(), nil
}

// runCaptured runs a tool under a wall-clock timeout, capturing stderr for
// failure classification. When verbose, stderr is tee'd to os.Stderr in
// real time.
func runCaptured(ctx context.Context, timeout time.Duration, verbose bool, bin string, args ...string) (stderr string, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderrBuf bytes.Buffer
	if verbose {
		cmd.Stderr = io.MultiWriter(&stderrBuf, os.Stderr)
	} else {
		cmd.Stderr = &stderrBuf
	}
	cmd.Stdout = io.Discard

	err = cmd.Run()
	return stderrBuf.String(), err
}

// stderrTail condenses the last few stderr lines into one diagnostic
// string for logs and result notes.
func stderrTail(stderr string, lines int) string {
	all := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(all) == 0 || (len(all) == 1 && all[0] == "") {
		return ""
	}
	start := 0
	if len(all) > lines {
		start = len(all) - lines
	}
	parts := make([]string, 0, lines)
	for _, l := range all[start:] {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "; ")
}
