// Command sonido-tempo detects the tempo of recordings and segments and
// measures where they are active.
//
//	sonido-tempo bpm      -in <file|folder|-> [-out folder]
//	sonido-tempo segments -segments <file|folder> -audio <file|folder> -out folder
//	sonido-tempo activity -in <file|folder> [-out folder]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/RyanBlaney/sonido-tempo/activity"
	"github.com/RyanBlaney/sonido-tempo/batch"
	"github.com/RyanBlaney/sonido-tempo/cache"
	"github.com/RyanBlaney/sonido-tempo/logging"
	"github.com/RyanBlaney/sonido-tempo/tempo"
	"github.com/RyanBlaney/sonido-tempo/tempo/config"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

const usage = `usage: sonido-tempo <command> [flags]

commands:
  bpm       detect the BPM of a file or every audio file in a folder
  segments  detect the BPM of each segment listed in <name>_segments.json
  activity  find silent and active intervals

run "sonido-tempo <command> -h" for flags`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logging.Error(err, "sonido-tempo failed")
		os.Exit(1)
	}
}

// options are the flags shared by every command
type options struct {
	configPath string
	logLevel   string
	preset     string
	window     float64
	workers    int
	cacheDir   string
	noProgress bool
	in         string
	out        string
	audio      string
	segments   string
	threshold  float64
	minSilence float64
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	}

	command := args[0]
	opts := &options{}

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "JSON configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug | info | warn | error (overrides config)")
	fs.IntVar(&opts.workers, "workers", -1, "concurrent files and windows (0=GOMAXPROCS, overrides config)")
	fs.StringVar(&opts.out, "out", "", "output folder for JSON reports")

	switch command {
	case "bpm":
		fs.StringVar(&opts.in, "in", "", "audio file or folder, - for stdin")
		fs.StringVar(&opts.preset, "preset", config.PresetSegment, "window preset: batch (10s) | segment (3s)")
		fs.Float64Var(&opts.window, "window", 0, "window length in seconds (overrides preset)")
		fs.StringVar(&opts.cacheDir, "cache", "", "result cache folder (overrides config)")
		fs.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	case "segments":
		fs.StringVar(&opts.segments, "segments", "", "segments JSON file or folder of <name>_segments.json")
		fs.StringVar(&opts.audio, "audio", "", "audio file or folder holding <name>.<ext>")
		fs.StringVar(&opts.preset, "preset", config.PresetSegment, "window preset: batch (10s) | segment (3s)")
		fs.Float64Var(&opts.window, "window", 0, "window length in seconds (overrides preset)")
		fs.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	case "activity":
		fs.StringVar(&opts.in, "in", "", "audio file or folder")
		fs.Float64Var(&opts.threshold, "threshold", 0, "silence threshold in dB below the loudest frame (overrides config)")
		fs.Float64Var(&opts.minSilence, "min-silence", -1, "minimum silence duration in seconds (overrides config)")
		fs.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(os.Stderr, usage)
		return flag.ErrHelp
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	switch command {
	case "bpm":
		return runBPM(ctx, cfg, opts, stdin, stdout)
	case "segments":
		return runSegments(ctx, cfg, opts, stdout)
	default:
		return runActivity(ctx, cfg, opts, stdout)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	} else if opts.preset != "" {
		tempoCfg, err := config.TempoPreset(opts.preset)
		if err != nil {
			return nil, err
		}
		cfg.Tempo = tempoCfg
	}

	if opts.window > 0 {
		cfg.Tempo.WindowSeconds = opts.window
	}
	if opts.workers >= 0 {
		cfg.Tempo.Workers = opts.workers
		cfg.Batch.Workers = opts.workers
	}
	if opts.cacheDir != "" {
		cfg.Batch.CacheDir = opts.cacheDir
	}
	if opts.noProgress {
		cfg.Batch.Progress = false
	}
	if opts.threshold != 0 {
		cfg.Activity.ThresholdDB = opts.threshold
	}
	if opts.minSilence >= 0 {
		cfg.Activity.MinSilenceDuration = opts.minSilence
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)

	return cfg, nil
}

func newProcessor(cfg *config.Config, detector *tempo.Detector, analyzer *activity.Analyzer) (*batch.Processor, func(), error) {
	var resultCache *cache.Cache
	if cfg.Batch.CacheDir != "" {
		var err error
		if resultCache, err = cache.Open(cfg.Batch.CacheDir); err != nil {
			return nil, nil, err
		}
	}

	closeCache := func() {
		if resultCache != nil {
			if err := resultCache.Close(); err != nil {
				logging.Warn("Failed to close result cache", logging.Fields{"reason": err.Error()})
			}
		}
	}

	p, err := batch.NewProcessor(cfg.Batch, detector, analyzer, resultCache)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return p, closeCache, nil
}

func runBPM(ctx context.Context, cfg *config.Config, opts *options, stdin io.Reader, stdout io.Writer) error {
	if opts.in == "" {
		return errors.New("bpm: -in is required")
	}

	decoder := transcode.NewDecoder(cfg.Decoder)
	detector, err := tempo.NewDetector(cfg.Tempo, decoder)
	if err != nil {
		return err
	}

	if opts.in == "-" {
		audioData, err := decoder.DecodeReader(ctx, stdin)
		if err != nil {
			return fmt.Errorf("failed to decode stdin: %w", err)
		}
		result, err := detector.DetectAudio(ctx, "stdin", audioData)
		if err != nil {
			return err
		}
		return printJSON(stdout, result)
	}

	if isDir(opts.in) {
		out := outputDir(opts.out, opts.in)
		p, closeCache, err := newProcessor(cfg, detector, nil)
		if err != nil {
			return err
		}
		defer closeCache()

		summary, err := p.ProcessAudioFolder(ctx, opts.in, out)
		if err != nil {
			return err
		}
		return printJSON(stdout, summary)
	}

	result, err := detector.DetectFile(ctx, opts.in)
	if err != nil {
		return err
	}
	if opts.out != "" && result.Detected() {
		if err := tempo.WriteJSON(filepath.Join(opts.out, tempo.FileReportName(opts.in)), result); err != nil {
			return err
		}
	}
	return printJSON(stdout, result)
}

func runSegments(ctx context.Context, cfg *config.Config, opts *options, stdout io.Writer) error {
	if opts.segments == "" || opts.audio == "" {
		return errors.New("segments: -segments and -audio are required")
	}

	detector, err := tempo.NewDetector(cfg.Tempo, transcode.NewDecoder(cfg.Decoder))
	if err != nil {
		return err
	}

	if isDir(opts.segments) {
		if opts.out == "" {
			return errors.New("segments: -out is required for a segments folder")
		}
		p, closeCache, err := newProcessor(cfg, detector, nil)
		if err != nil {
			return err
		}
		defer closeCache()

		summary, err := p.ProcessSegmentFolder(ctx, opts.segments, opts.audio, opts.out)
		if err != nil {
			return err
		}
		return printJSON(stdout, summary)
	}

	audioFile := opts.audio
	if isDir(audioFile) {
		base, ok := tempo.SegmentsBaseName(opts.segments)
		if !ok {
			return fmt.Errorf("segments: cannot infer the audio name from %s", opts.segments)
		}
		if audioFile, ok = batch.FindAudioFile(opts.audio, base); !ok {
			return fmt.Errorf("%w: %s in %s", batch.ErrNoAudioFile, base, opts.audio)
		}
	}

	report, err := detector.DetectSegmentsFile(ctx, audioFile, opts.segments)
	if err != nil {
		return err
	}
	if opts.out != "" {
		if err := tempo.WriteJSON(filepath.Join(opts.out, tempo.SegmentReportName(audioFile)), report); err != nil {
			return err
		}
	}
	return printJSON(stdout, report)
}

func runActivity(ctx context.Context, cfg *config.Config, opts *options, stdout io.Writer) error {
	if opts.in == "" {
		return errors.New("activity: -in is required")
	}

	analyzer, err := activity.NewAnalyzer(cfg.Activity, transcode.NewDecoder(cfg.Decoder))
	if err != nil {
		return err
	}

	if isDir(opts.in) {
		p, closeCache, err := newProcessor(cfg, nil, analyzer)
		if err != nil {
			return err
		}
		defer closeCache()

		summary, err := p.ProcessActivityFolder(ctx, opts.in, outputDir(opts.out, opts.in))
		if err != nil {
			return err
		}
		return printJSON(stdout, summary)
	}

	report, err := analyzer.AnalyzeFile(ctx, opts.in)
	if err != nil {
		return err
	}
	return printJSON(stdout, report)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// outputDir defaults folder reports to <in>/results
func outputDir(out, in string) string {
	if out != "" {
		return out
	}
	return filepath.Join(in, "results")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
