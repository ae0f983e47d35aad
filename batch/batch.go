package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-tempo/activity"
	"github.com/RyanBlaney/sonido-tempo/algorithms/stats"
	"github.com/RyanBlaney/sonido-tempo/cache"
	"github.com/RyanBlaney/sonido-tempo/logging"
	"github.com/RyanBlaney/sonido-tempo/tempo"
	"github.com/RyanBlaney/sonido-tempo/tempo/config"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

// AllResultsFileName is the aggregate report of a BPM folder run
const AllResultsFileName = "all_bpm_results.json"

// ActivityReportSuffix names per-file activity reports: <base>_activity.json
const ActivityReportSuffix = "_activity.json"

// bpmNamespace prefixes cached FileResults
const bpmNamespace = "bpm"

// ErrNoAudioFile means a segments file had no matching recording
var ErrNoAudioFile = errors.New("no matching audio file")

// AllResults is the aggregate of every file with a detected BPM
type AllResults struct {
	TotalFiles int                 `json:"total_files"`
	Results    []*tempo.FileResult `json:"results"`
}

// Failure records why one input produced no report
type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Summary counts the outcome of a folder run. One input's failure never
// aborts the run.
type Summary struct {
	Processed int                 `json:"processed"`
	Failed    int                 `json:"failed"`
	Cached    int                 `json:"cached"`
	Failures  []Failure           `json:"failures,omitempty"`
	BPMStats  *stats.SummaryStats `json:"bpm_stats,omitempty"`
}

// Processor runs tempo and activity analysis over folders
type Processor struct {
	config   *config.BatchConfig
	detector *tempo.Detector
	analyzer *activity.Analyzer
	cache    *cache.Cache
	progress io.Writer
	logger   logging.Logger
}

// NewProcessor creates a processor. A nil detector disables the BPM runs,
// a nil analyzer disables ProcessActivityFolder and a nil cache disables
// result reuse.
func NewProcessor(cfg *config.BatchConfig, detector *tempo.Detector, analyzer *activity.Analyzer, resultCache *cache.Cache) (*Processor, error) {
	if cfg == nil {
		cfg = config.DefaultBatchConfig()
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative: %d", cfg.Workers)
	}

	p := &Processor{
		config:   cfg,
		detector: detector,
		analyzer: analyzer,
		cache:    resultCache,
		logger: logging.WithFields(logging.Fields{
			"component": "batch_processor",
		}),
	}
	if cfg.Progress {
		p.progress = os.Stderr
	}

	return p, nil
}

// SetProgressOutput redirects the progress bar; nil disables it
func (p *Processor) SetProgressOutput(w io.Writer) {
	p.progress = w
}

// CollectAudioFiles lists the supported audio files directly inside dir,
// sorted by name.
func CollectAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !transcode.IsSupported(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// FindAudioFile looks for <base> with each supported extension in dir
func FindAudioFile(dir, base string) (string, bool) {
	for _, ext := range transcode.SupportedExtensions() {
		candidate := filepath.Join(dir, base+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}

// outcome is the per-item record filled in by a worker
type outcome struct {
	err    error
	cached bool
}

// run applies fn to every item on a bounded worker pool. Only context
// errors stop the run; item errors are recorded in the returned outcomes.
func (p *Processor) run(ctx context.Context, label string, items []string, fn func(ctx context.Context, i int, item string) (bool, error)) ([]outcome, error) {
	outcomes := make([]outcome, len(items))

	var progress *mpb.Progress
	var bar *mpb.Bar
	if p.progress != nil && len(items) > 0 {
		progress = mpb.New(mpb.WithOutput(p.progress), mpb.WithWidth(64))
		bar = progress.AddBar(int64(len(items)),
			mpb.PrependDecorators(
				decor.Name(label+": "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
		)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.ResolveWorkers(p.config.Workers))

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			cached, err := fn(gctx, i, item)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			outcomes[i] = outcome{err: err, cached: cached}

			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}

	err := g.Wait()
	if progress != nil {
		if !bar.Completed() {
			bar.Abort(false)
		}
		progress.Wait()
	}
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

// tally folds outcomes into a summary and logs each failure
func (p *Processor) tally(items []string, outcomes []outcome) *Summary {
	summary := &Summary{}
	for i, o := range outcomes {
		if o.err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{
				File:  filepath.Base(items[i]),
				Error: o.err.Error(),
			})
			p.logger.Warn("Failed to process file", logging.Fields{
				"file":   items[i],
				"reason": o.err.Error(),
			})
			continue
		}
		summary.Processed++
		if o.cached {
			summary.Cached++
		}
	}
	return summary
}

// ProcessAudioFolder detects the BPM of every supported file in audioDir.
// Each detected file gets <base>_bpm.json in outDir and all of them are
// collected into all_bpm_results.json. Files without a BPM count as
// failed and get no report.
func (p *Processor) ProcessAudioFolder(ctx context.Context, audioDir, outDir string) (*Summary, error) {
	if p.detector == nil {
		return nil, errors.New("tempo detection is not configured")
	}

	files, err := CollectAudioFiles(audioDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	results := make([]*tempo.FileResult, len(files))

	outcomes, err := p.run(ctx, "BPM", files, func(ctx context.Context, i int, path string) (bool, error) {
		result, cached, err := p.detectFile(ctx, path)
		if err != nil {
			return false, err
		}
		if !result.Detected() {
			return cached, tempo.ErrNoBPMDetected
		}

		results[i] = result
		return cached, tempo.WriteJSON(filepath.Join(outDir, tempo.FileReportName(path)), result)
	})
	if err != nil {
		return nil, err
	}

	summary := p.tally(files, outcomes)

	detected := make([]*tempo.FileResult, 0, len(results))
	bpms := make([]float64, 0, len(results))
	for i, r := range results {
		if r == nil || outcomes[i].err != nil {
			continue
		}
		detected = append(detected, r)
		bpms = append(bpms, *r.BPM)
	}

	if len(detected) > 0 {
		all := &AllResults{TotalFiles: len(detected), Results: detected}
		if err := tempo.WriteJSON(filepath.Join(outDir, AllResultsFileName), all); err != nil {
			return nil, err
		}

		if summary.BPMStats, err = stats.Summarize(bpms); err != nil {
			return nil, err
		}
	}

	fields := logging.Fields{
		"folder":    audioDir,
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"cached":    summary.Cached,
	}
	if summary.BPMStats != nil {
		fields["median_bpm"] = summary.BPMStats.Median
	}
	p.logger.Info("BPM folder processed", fields)

	return summary, nil
}

// detectFile consults the cache before running the detector
func (p *Processor) detectFile(ctx context.Context, path string) (*tempo.FileResult, bool, error) {
	var key []byte
	if p.cache != nil {
		var err error
		if key, err = cache.FileKey(path, bpmNamespace, p.detector.GetConfig().Key()); err != nil {
			return nil, false, err
		}

		var cached tempo.FileResult
		found, err := p.cache.Get(key, &cached)
		if err != nil {
			p.logger.Warn("Cache lookup failed", logging.Fields{"file": path, "reason": err.Error()})
		}
		if found {
			cached.AudioFile = filepath.Base(path)
			return &cached, true, nil
		}
	}

	result, err := p.detector.DetectFile(ctx, path)
	if err != nil {
		return nil, false, err
	}

	if key != nil {
		if err := p.cache.Put(key, result); err != nil {
			p.logger.Warn("Cache write failed", logging.Fields{"file": path, "reason": err.Error()})
		}
	}

	return result, false, nil
}

// ProcessSegmentFolder analyses every <base>_segments.json in segmentDir
// against the recording <base>.<ext> in audioDir and writes
// <base>_segment_bpm.json to outDir.
func (p *Processor) ProcessSegmentFolder(ctx context.Context, segmentDir, audioDir, outDir string) (*Summary, error) {
	if p.detector == nil {
		return nil, errors.New("tempo detection is not configured")
	}

	entries, err := os.ReadDir(segmentDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment folder: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	var segmentFiles []string
	for _, entry := range entries {
		if _, ok := tempo.SegmentsBaseName(entry.Name()); ok && !entry.IsDir() {
			segmentFiles = append(segmentFiles, filepath.Join(segmentDir, entry.Name()))
		}
	}
	sort.Strings(segmentFiles)

	outcomes, err := p.run(ctx, "Segments", segmentFiles, func(ctx context.Context, _ int, segmentFile string) (bool, error) {
		base, _ := tempo.SegmentsBaseName(segmentFile)
		audioFile, ok := FindAudioFile(audioDir, base)
		if !ok {
			return false, fmt.Errorf("%w: %s.{%s}", ErrNoAudioFile, base,
				strings.Join(trimDots(transcode.SupportedExtensions()), ","))
		}

		report, err := p.detector.DetectSegmentsFile(ctx, audioFile, segmentFile)
		if err != nil {
			return false, err
		}
		return false, tempo.WriteJSON(filepath.Join(outDir, tempo.SegmentReportName(audioFile)), report)
	})
	if err != nil {
		return nil, err
	}

	summary := p.tally(segmentFiles, outcomes)
	p.logger.Info("Segment folder processed", logging.Fields{
		"folder":    segmentDir,
		"processed": summary.Processed,
		"failed":    summary.Failed,
	})

	return summary, nil
}

// ProcessActivityFolder writes <base>_activity.json for every supported
// file in audioDir and a summary ordered by active percentage.
func (p *Processor) ProcessActivityFolder(ctx context.Context, audioDir, outDir string) (*Summary, error) {
	if p.analyzer == nil {
		return nil, errors.New("activity analysis is not configured")
	}

	files, err := CollectAudioFiles(audioDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output folder: %w", err)
	}

	reports := make([]*activity.Report, len(files))

	outcomes, err := p.run(ctx, "Activity", files, func(ctx context.Context, i int, path string) (bool, error) {
		report, err := p.analyzer.AnalyzeFile(ctx, path)
		if err != nil {
			return false, err
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ActivityReportSuffix
		if err := tempo.WriteJSON(filepath.Join(outDir, name), report); err != nil {
			return false, err
		}
		reports[i] = report
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	summary := p.tally(files, outcomes)

	if summary.Processed > 0 {
		if err := tempo.WriteJSON(filepath.Join(outDir, activity.SummaryFileName), activity.Summarize(reports)); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Activity folder processed", logging.Fields{
		"folder":    audioDir,
		"processed": summary.Processed,
		"failed":    summary.Failed,
	})

	return summary, nil
}

func trimDots(exts []string) []string {
	out := make([]string, len(exts))
	for i, ext := range exts {
		out[i] = strings.TrimPrefix(ext, ".")
	}
	return out
}
