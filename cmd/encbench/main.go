package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/platinumlabs/encbench/internal/debugserver"
	"github.com/platinumlabs/encbench/internal/encoder"
	"github.com/platinumlabs/encbench/internal/gate"
	"github.com/platinumlabs/encbench/internal/hardware"
	"github.com/platinumlabs/encbench/internal/matrix"
	"github.com/platinumlabs/encbench/internal/metrics"
	"github.com/platinumlabs/encbench/internal/pipeline"
	"github.com/platinumlabs/encbench/internal/queue"
	"github.com/platinumlabs/encbench/internal/ratelimit"
	"github.com/platinumlabs/encbench/internal/resources"
	"github.com/platinumlabs/encbench/internal/sign"
	"github.com/platinumlabs/encbench/internal/submit"
	"github.com/platinumlabs/encbench/internal/tracing"
	"github.com/platinumlabs/encbench/pkg/config"
	"github.com/platinumlabs/encbench/pkg/domain"
)

// version is stamped by the release build.
var version = "dev"

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func main() {
	cfgPath := getenv("ENCBENCH_CONFIG", configPath())
	ui := newUI()

	root := &cobra.Command{
		Use:   "encbench",
		Short: "encbench CLI",
		Long:  "encbench runs ffmpeg encoding benchmarks and contributes results to the shared encoding database.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Path to config file")

	root.AddCommand(initCmd(&cfgPath, ui))
	root.AddCommand(runCmd(&cfgPath, ui))
	root.AddCommand(queueCmd(&cfgPath, ui))
	root.AddCommand(hwCmd(ui))
	root.AddCommand(versionCmd(ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func runCmd(cfgPath *string, ui *ui) *cobra.Command {
	var (
		input     string
		mode      string
		codecs    string
		encoders  string
		presets   string
		qualities string
		workers   int
		noVMAF    bool
		noSubmit  bool
		swOnly    bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a benchmark session",
		Example: "encbench run --input clip.y4m --mode narrow --codecs h264,av1",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if noVMAF {
				cfg.DisableVMAF = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if strings.TrimSpace(input) == "" {
				return errors.New("--input is required")
			}
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input clip: %w", err)
			}

			// One ID per session ties client logs to collector-side ingest logs.
			logger := newLogger(cfg).With("session", uuid.NewString())
			slog.SetDefault(logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
				Enabled:      cfg.TracingEnabled,
				ServiceName:  "encbench",
				OTLPEndpoint: cfg.OTLPEndpoint,
				OTLPInsecure: cfg.OTLPInsecure,
				SampleRatio:  cfg.TraceSampleRate,
			}, logger)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			if cfg.MetricsListen != "" {
				dbg := debugserver.New(cfg.MetricsListen, logger)
				dbg.Start()
				defer dbg.Shutdown(context.Background())
			}

			eng := encoder.New(
				time.Duration(cfg.EncodeTimeoutSeconds)*time.Second,
				time.Duration(cfg.ScoreTimeoutSeconds)*time.Second,
				cfg.LogLevel == "debug")
			ffVersion, ok := eng.Preflight(ctx)
			if !ok {
				return errors.New("ffmpeg and ffprobe are required on PATH")
			}
			fmt.Printf("%s %s\n", ui.info("[INFO]"), ffVersion)
			if !cfg.DisableVMAF && !eng.HasLibVMAF(ctx) {
				fmt.Printf("%s this ffmpeg build lacks libvmaf; results will carry no quality score\n", ui.warn("[WARN]"))
			}

			ids, err := resolveEncoders(ctx, eng, codecs, encoders, swOnly)
			if err != nil {
				return err
			}

			tasks, err := buildTasks(mode, ids, presets, qualities, eng)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				return errors.New("task matrix is empty (no usable encoder/preset combinations)")
			}
			fmt.Printf("%s %d tasks across %d encoder(s)\n", ui.info("[INFO]"), len(tasks), len(ids))
			if dryRun {
				for _, t := range tasks {
					q := "default"
					if t.Quality != nil {
						q = strconv.Itoa(*t.Quality)
					}
					fmt.Printf("  %s %s preset=%s quality=%s\n", ui.dim("•"), t.EncoderID, t.Preset, q)
				}
				return nil
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Detecting hardware..."
			spin.Start()
			hw := hardware.Detect(ctx)
			isVirtual, virtTags := resources.DetectVirtualization(hw)
			spin.Stop()
			fmt.Printf("%s %s | %s | %d GB RAM | %s\n", ui.info("[INFO]"),
				hw.CPUModel, emptyOr(hw.GPUModel, "no GPU"), hw.RAMGB, hw.OS)
			if isVirtual {
				fmt.Printf("%s virtualization detected (%s); results will not be submitted\n",
					ui.warn("[WARN]"), virtTags)
			}

			inputHash, err := pipeline.HashInput(input)
			if err != nil {
				return err
			}

			store, err := queue.Open(queue.Config{
				Backend:   cfg.QueueStore,
				Dir:       cfg.QueueDir,
				RedisAddr: cfg.RedisAddr,
			})
			if err != nil {
				return err
			}
			metrics.RegisterQueueCollector(store, logger)

			client := newSubmitClient(cfg, logger)
			if !noSubmit {
				drainQueue(ctx, store, client, ui, logger)
			}

			poolSize := resources.WorkerCount(cfg.Workers)
			var bar *progressbar.ProgressBar
			p := &pipeline.Pipeline{
				Enc: eng,
				Gate: gate.Config{
					Sigma:                cfg.OutlierSigma,
					LoadThresholdPercent: cfg.LoadThresholdPercent,
				},
				Baseline: &gate.HTTPBaselineRepository{
					BaseURL: cfg.CollectorBaseURL,
					Limit:   cfg.BaselineLimit,
					Client:  &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second},
				},
				Client:           client,
				Queue:            store,
				HW:               hw,
				VirtTags:         virtTags,
				InputPath:        input,
				InputHash:        inputHash,
				FFmpegVersion:    ffVersion,
				ClientVersion:    version,
				Workers:          poolSize,
				LoadSampleWindow: time.Duration(cfg.LoadSampleSeconds) * time.Second,
				DisableVMAF:      cfg.DisableVMAF,
				Logger:           logger,
				Progress: func(done, total int) {
					if bar == nil || bar.GetMax() != total {
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetDescription("Scoring"),
							progressbar.OptionSetWidth(18),
							progressbar.OptionShowCount(),
							progressbar.OptionClearOnFinish(),
						)
					}
					_ = bar.Set(done)
				},
			}
			if noSubmit {
				p.Client = discardSubmitter{}
				p.Queue = nil
			}

			fmt.Printf("%s Benchmarking with %d worker(s)...\n", ui.info("[INFO]"), poolSize)
			stats, err := p.Run(ctx, tasks)
			printStats(ui, stats)
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Reference clip to encode")
	cmd.Flags().StringVar(&mode, "mode", "narrow", "Sweep mode: single|narrow|broad|exhaustive")
	cmd.Flags().StringVar(&codecs, "codecs", "h264", "Comma-separated codec families (h264,hevc,av1,vp9)")
	cmd.Flags().StringVar(&encoders, "encoders", "", "Explicit ffmpeg encoder names (overrides --codecs)")
	cmd.Flags().StringVar(&presets, "presets", "", "Presets for --mode single")
	cmd.Flags().StringVar(&qualities, "qualities", "", "Comma-separated CRF-style quality values")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker count (0 = physical cores)")
	cmd.Flags().BoolVar(&noVMAF, "no-vmaf", false, "Skip quality scoring")
	cmd.Flags().BoolVar(&noSubmit, "no-submit", false, "Measure only; do not contact the collector")
	cmd.Flags().BoolVar(&swOnly, "software-only", false, "Skip hardware encoders")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the task matrix and exit")
	return cmd
}

func queueCmd(cfgPath *string, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Retry queue operations",
	}

	drain := &cobra.Command{
		Use:   "drain",
		Short: "Resubmit queued results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			store, err := queue.Open(queue.Config{
				Backend:   cfg.QueueStore,
				Dir:       cfg.QueueDir,
				RedisAddr: cfg.RedisAddr,
			})
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			drainQueue(ctx, store, newSubmitClient(cfg, logger), ui, logger)
			return nil
		},
	}

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "List queued results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			store, err := queue.Open(queue.Config{
				Backend:   cfg.QueueStore,
				Dir:       cfg.QueueDir,
				RedisAddr: cfg.RedisAddr,
			})
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Printf("%s Queue is empty\n", ui.ok("[OK]"))
				return nil
			}
			fmt.Printf("%s %d queued result(s):\n", ui.info("[INFO]"), len(items))
			for _, it := range items {
				fmt.Printf("  %s %s %s\n", ui.dim("•"), it.Name, ui.dim(fmt.Sprintf("(%d bytes)", len(it.Payload))))
			}
			return nil
		},
	}

	cmd.AddCommand(drain, inspect)
	return cmd
}

func hwCmd(ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "hw",
		Short: "Show detected hardware",
		RunE: func(cmd *cobra.Command, args []string) error {
			hw := hardware.Detect(cmd.Context())
			isVirtual, tags := resources.DetectVirtualization(hw)
			fmt.Printf("%s Hardware\n", ui.title("encbench"))
			fmt.Printf("%s CPU:  %s\n", ui.info("•"), hw.CPUModel)
			fmt.Printf("%s GPU:  %s\n", ui.info("•"), emptyOr(hw.GPUModel, "<none>"))
			fmt.Printf("%s RAM:  %d GB\n", ui.info("•"), hw.RAMGB)
			fmt.Printf("%s OS:   %s\n", ui.info("•"), hw.OS)
			fmt.Printf("%s Workers: %d\n", ui.info("•"), resources.WorkerCount(0))
			if isVirtual {
				fmt.Printf("%s Virtualized: %s\n", ui.warn("•"), tags)
			}
			return nil
		},
	}
}

func initCmd(cfgPath *string, ui *ui) *cobra.Command {
	var noPrompt bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize client config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				cfg.CollectorBaseURL = prompt(reader, "Collector URL", cfg.CollectorBaseURL)
				cfg.APIKey = prompt(reader, "API key (optional)", cfg.APIKey)
				secret, err := promptSecret("HMAC secret (optional, hidden)")
				if err != nil {
					return err
				}
				if secret != "" {
					cfg.HMACSecret = secret
				}
				cfg.QueueDir = prompt(reader, "Retry queue directory", cfg.QueueDir)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(*cfgPath), 0o755); err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(*cfgPath, data, 0o600); err != nil {
				return err
			}
			fmt.Printf("%s Config written to %s\n", ui.ok("[OK]"), *cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func versionCmd(ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", ui.title("encbench"), version)
		},
	}
}

// resolveEncoders maps user codec/encoder selections onto encoders this
// ffmpeg build actually ships. Per codec family the preferred hardware
// engine (when present and allowed) and the best software encoder both
// participate.
func resolveEncoders(ctx context.Context, eng *encoder.FFmpeg, codecs, explicit string, swOnly bool) ([]string, error) {
	if explicit != "" {
		var out []string
		for _, id := range splitList(explicit) {
			if !eng.HasEncoder(ctx, id) {
				return nil, fmt.Errorf("encoder %q not available in this ffmpeg build", id)
			}
			out = append(out, id)
		}
		return out, nil
	}

	var out []string
	for _, c := range splitList(codecs) {
		family, ok := encoder.NormalizeFamily(c)
		if !ok {
			return nil, fmt.Errorf("unknown codec %q", c)
		}
		if !swOnly {
			for _, cand := range encoder.HardwareCandidates(family) {
				if eng.HasEncoder(ctx, cand[0]) {
					out = append(out, cand[0])
					break
				}
			}
		}
		for _, sw := range encoder.SoftwareOrder(family) {
			if eng.HasEncoder(ctx, sw) {
				out = append(out, sw)
				break
			}
		}
	}
	return dedup(out), nil
}

func buildTasks(mode string, ids []string, presets, qualities string, eng *encoder.FFmpeg) ([]domain.BenchmarkTask, error) {
	qs, err := splitInts(qualities)
	if err != nil {
		return nil, err
	}

	m := domain.Mode(strings.ToLower(strings.TrimSpace(mode)))
	switch m {
	case domain.ModeSingle:
		ps := splitList(presets)
		if len(ps) == 0 {
			return nil, errors.New("--mode single requires --presets")
		}
		var selections []domain.BenchmarkTask
		for _, id := range ids {
			for _, p := range ps {
				if len(qs) == 0 {
					selections = append(selections, domain.BenchmarkTask{EncoderID: id, Preset: p})
					continue
				}
				for i := range qs {
					q := qs[i]
					selections = append(selections, domain.BenchmarkTask{EncoderID: id, Preset: p, Quality: &q})
				}
			}
		}
		return matrix.BuildSingle(selections), nil
	case domain.ModeNarrow, domain.ModeBroad, domain.ModeExhaustive:
		return matrix.Build(m, ids, qs, eng), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func newSubmitClient(cfg *config.Config, logger *slog.Logger) *submit.Client {
	c := &submit.Client{
		BaseURL:          strings.TrimRight(cfg.CollectorBaseURL, "/"),
		APIKey:           cfg.APIKey,
		UseTokenProtocol: cfg.UseTokenProtocol,
		TokenEndpoints:   cfg.TokenEndpoints,
		Retries:          cfg.Retries,
		BackoffPolicy:    cfg.BackoffPolicy,
		BackoffBase:      time.Duration(cfg.BackoffBaseSeconds) * time.Second,
		BackoffMax:       time.Duration(cfg.BackoffMaxSeconds) * time.Second,
		Logger:           logger,
	}
	if cfg.HMACSecret != "" {
		c.Signer = sign.New(cfg.HMACSecret)
	}
	if cfg.SubmitRatePerMinute > 0 {
		c.Limiter = ratelimit.NewTokenBucketLimiter()
		c.Bucket = ratelimit.Bucket{
			RequestsPerMinute: cfg.SubmitRatePerMinute,
			BurstSize:         cfg.SubmitBurst,
		}
		if c.Bucket.BurstSize <= 0 {
			c.Bucket.BurstSize = 1
		}
	}
	return c
}

func drainQueue(ctx context.Context, store queue.Store, client *submit.Client, ui *ui, logger *slog.Logger) {
	delivered, remaining := queue.Drain(ctx, store, client.SubmitRaw, logger)
	if delivered+remaining > 0 {
		fmt.Printf("%s Retry queue: %d delivered, %d kept\n", ui.info("[INFO]"), delivered, remaining)
	}
}

type discardSubmitter struct{}

func (discardSubmitter) Submit(context.Context, domain.ResultRecord) error { return nil }

func printStats(ui *ui, stats pipeline.RunStats) {
	fmt.Printf("%s Done in %s\n", ui.title("encbench"), stats.Elapsed.Round(time.Second))
	fmt.Printf("%s Encoded:   %d/%d (%d via software fallback)\n", ui.ok("•"), stats.Encoded, stats.Tasks, stats.Fallbacks)
	fmt.Printf("%s Scored:    %d\n", ui.info("•"), stats.Scored)
	fmt.Printf("%s Submitted: %d\n", ui.ok("•"), stats.Submitted)
	if stats.Queued > 0 {
		fmt.Printf("%s Queued:    %d (will retry next session)\n", ui.warn("•"), stats.Queued)
	}
	if stats.Skipped > 0 {
		fmt.Printf("%s Withheld:  %d (integrity gate)\n", ui.warn("•"), stats.Skipped)
	}
	if stats.Failed > 0 {
		fmt.Printf("%s Failed:    %d\n", ui.err("•"), stats.Failed)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func helpTemplate(ui *ui) string {
	title := ui.title("encbench")
	return fmt.Sprintf(`%s — crowd-sourced encoding benchmarks

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  encbench init
  encbench hw
  encbench run --input clip.y4m --mode narrow --codecs h264
  encbench run --input clip.y4m --mode single --encoders libx265 --presets medium --qualities 23,28
  encbench queue drain

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("ENCBENCH_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".encbench", "config.yaml")
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func splitInts(s string) ([]int, error) {
	var out []int
	for _, e := range splitList(s) {
		n, err := strconv.Atoi(e)
		if err != nil {
			return nil, fmt.Errorf("invalid quality value %q", e)
		}
		out = append(out, n)
	}
	return out, nil
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
