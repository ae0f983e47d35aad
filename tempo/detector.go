package tempo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-tempo/algorithms/common"
	"github.com/RyanBlaney/sonido-tempo/algorithms/stats"
	"github.com/RyanBlaney/sonido-tempo/algorithms/temporal"
	"github.com/RyanBlaney/sonido-tempo/logging"
	"github.com/RyanBlaney/sonido-tempo/tempo/config"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

// AudioDecoder produces mono samples for a file
type AudioDecoder interface {
	DecodeFile(ctx context.Context, path string) (*transcode.AudioData, error)
}

// Detector estimates the tempo of recordings and their segments
type Detector struct {
	config    *config.TempoConfig
	estimator *temporal.TempoEstimation
	decoder   AudioDecoder
	logger    logging.Logger
}

// NewDetector creates a detector. A nil config uses DefaultTempoConfig and
// a nil decoder uses transcode.NewDecoder(nil).
func NewDetector(cfg *config.TempoConfig, decoder AudioDecoder) (*Detector, error) {
	if cfg == nil {
		cfg = config.DefaultTempoConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tempo config: %w", err)
	}
	if decoder == nil {
		decoder = transcode.NewDecoder(nil)
	}

	envelope, err := temporal.NewEnvelopeWithCoefficients(cfg.SmoothingGain, cfg.SmoothingFeedback)
	if err != nil {
		return nil, err
	}

	method, err := stats.ParseCorrelationMethod(cfg.CorrelationMethod)
	if err != nil {
		return nil, err
	}

	estimator, err := temporal.NewTempoEstimationWithParams(cfg.Levels, cfg.MinBPM, cfg.MaxBPM, envelope, method)
	if err != nil {
		return nil, err
	}

	return &Detector{
		config:    cfg,
		estimator: estimator,
		decoder:   decoder,
		logger: logging.WithFields(logging.Fields{
			"component": "tempo_detector",
		}),
	}, nil
}

// GetConfig returns the detector's configuration
func (d *Detector) GetConfig() *config.TempoConfig {
	return d.config
}

// DetectSamples estimates the tempo of a mono sample sequence. Windows are
// analysed concurrently and independently; the result is the median of
// every window estimate rounded to one decimal. A result without estimates
// is returned with Detected false and a nil error. Errors are reserved for
// invalid input and cancellation.
func (d *Detector) DetectSamples(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function":    "DetectSamples",
		"sample_rate": sampleRate,
		"samples":     len(samples),
	})

	windower, err := common.NewWindowerForDuration(d.config.WindowSeconds, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("invalid window: %w", err)
	}

	windows := windower.Split(len(samples))
	results := make([]WindowResult, len(windows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.WorkerCount())

	for i, win := range windows {
		results[i] = WindowResult{
			Index:     win.Index,
			StartTime: float64(win.Start) / float64(sampleRate),
			EndTime:   float64(win.End()) / float64(sampleRate),
			State:     WindowPending,
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.estimateWindow(&results[i], win.Slice(samples), sampleRate)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		SampleRate:    sampleRate,
		WindowSamples: windower.GetWindowSize(),
		TotalWindows:  len(windows),
		Windows:       results,
	}

	estimates := result.Estimates()
	result.EstimatedWindows = len(estimates)

	if len(estimates) == 0 {
		logger.Debug("No window produced a tempo estimate", logging.Fields{
			"windows": len(windows),
		})
		return result, nil
	}

	median, err := stats.Median(estimates)
	if err != nil {
		return nil, err
	}

	result.BPM = float64Ptr(common.RoundTo(median, 1))
	result.Detected = true

	logger.Debug("Tempo detected", logging.Fields{
		"bpm":               *result.BPM,
		"windows":           len(windows),
		"estimated_windows": len(estimates),
	})

	return result, nil
}

// estimateWindow runs the pipeline for one window and records the outcome.
// It only writes to its own record.
func (d *Detector) estimateWindow(record *WindowResult, window []float64, sampleRate int) {
	fail := func(err error) {
		d.logger.Debug("Window produced no estimate", logging.Fields{
			"window": record.Index,
			"start":  record.StartTime,
			"state":  string(record.State),
			"reason": err.Error(),
		})

		record.State = WindowFailed
		record.Error = err.Error()
		record.err = err
	}

	composite, err := d.estimator.Composite(window)
	if err != nil {
		fail(err)
		return
	}
	record.State = WindowAggregated

	estimate, err := d.estimator.EstimateComposite(composite, sampleRate)
	if err != nil {
		fail(err)
		return
	}

	record.State = WindowEstimated
	record.BPM = float64Ptr(estimate.BPM)
	record.Lag = estimate.Lag
}

// DetectSegment estimates the tempo of [startTime, endTime) seconds of a
// sample sequence. The range must be non-empty and lie within the audio;
// otherwise ErrInvalidRange is returned and nothing is analysed.
func (d *Detector) DetectSegment(ctx context.Context, samples []float64, sampleRate int, startTime, endTime float64) (*Result, error) {
	segment, err := SliceSegment(samples, sampleRate, startTime, endTime)
	if err != nil {
		return nil, err
	}
	return d.DetectSamples(ctx, segment, sampleRate)
}

// SliceSegment returns samples[int(start*rate):int(end*rate)] after
// validating the range.
func SliceSegment(samples []float64, sampleRate int, startTime, endTime float64) ([]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if math.IsNaN(startTime) || math.IsNaN(endTime) {
		return nil, fmt.Errorf("%w: NaN bound", ErrInvalidRange)
	}

	duration := float64(len(samples)) / float64(sampleRate)
	if startTime < 0 || endTime > duration || startTime >= endTime {
		return nil, fmt.Errorf("%w: %.2fs - %.2fs of %.2fs", ErrInvalidRange, startTime, endTime, duration)
	}

	startSample := int(startTime * float64(sampleRate))
	endSample := int(endTime * float64(sampleRate))
	if startSample >= len(samples) || endSample > len(samples) || startSample >= endSample {
		return nil, fmt.Errorf("%w: samples %d - %d of %d", ErrInvalidRange, startSample, endSample, len(samples))
	}

	return samples[startSample:endSample], nil
}

// DetectFile decodes a file and estimates its tempo. Decode failures are
// returned as errors; an undetected tempo is a FileResult with a nil BPM.
func (d *Detector) DetectFile(ctx context.Context, path string) (*FileResult, error) {
	audioData, err := d.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return d.DetectAudio(ctx, filepath.Base(path), audioData)
}

// DetectAudio estimates the tempo of already decoded audio and reports it
// under name.
func (d *Detector) DetectAudio(ctx context.Context, name string, audioData *transcode.AudioData) (*FileResult, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function":   "DetectAudio",
		"audio_file": name,
	})

	result, err := d.DetectSamples(ctx, audioData.PCM, audioData.SampleRate)
	if err != nil {
		return nil, err
	}

	fileResult := &FileResult{
		AudioFile: name,
		BPM:       result.BPM,
		Duration:  audioData.DurationSeconds(),
		Result:    result,
	}
	if !audioData.Tags.IsEmpty() {
		fileResult.Tags = audioData.Tags
	}

	if result.Detected {
		logger.Info("Tempo detected", logging.Fields{
			"bpm": *result.BPM,
		})
	} else {
		logger.Warn("Could not detect a tempo", logging.Fields{
			"windows": result.TotalWindows,
		})
	}

	return fileResult, nil
}

// AnalyzeSegments estimates the tempo of each segment of already decoded
// audio. Invalid segments get a nil BPM and an error message; they never
// stop the remaining segments.
func (d *Detector) AnalyzeSegments(ctx context.Context, audioFile string, audioData *transcode.AudioData, segments []Segment) (*SegmentReport, error) {
	report := &SegmentReport{
		AudioFile:     filepath.Base(audioFile),
		TotalSegments: len(segments),
		Segments:      make([]SegmentResult, 0, len(segments)),
	}

	for i, seg := range segments {
		record := SegmentResult{
			SegmentIndex: i,
			StartTime:    seg.StartTime,
			EndTime:      seg.EndTime,
			Duration:     seg.EndTime - seg.StartTime,
		}

		result, err := d.DetectSegment(ctx, audioData.PCM, audioData.SampleRate, seg.StartTime, seg.EndTime)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case err != nil:
			record.Error = err.Error()
			d.logger.Warn("Skipping segment", logging.Fields{
				"audio_file": report.AudioFile,
				"segment":    i,
				"reason":     err.Error(),
			})
		default:
			record.BPM = result.BPM
			record.Result = result
			if !result.Detected {
				record.Error = ErrNoBPMDetected.Error()
			}
		}

		report.Segments = append(report.Segments, record)
	}

	return report, nil
}

// DetectSegmentsFile decodes audioFile and analyses the segments listed in
// segmentFile.
func (d *Detector) DetectSegmentsFile(ctx context.Context, audioFile, segmentFile string) (*SegmentReport, error) {
	segments, err := LoadSegments(segmentFile)
	if err != nil {
		return nil, err
	}

	audioData, err := d.decoder.DecodeFile(ctx, audioFile)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", audioFile, err)
	}

	return d.AnalyzeSegments(ctx, audioFile, audioData, segments.Segments)
}
