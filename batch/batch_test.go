package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RyanBlaney/sonido-tempo/activity"
	"github.com/RyanBlaney/sonido-tempo/cache"
	"github.com/RyanBlaney/sonido-tempo/tempo"
	"github.com/RyanBlaney/sonido-tempo/tempo/config"
	"github.com/RyanBlaney/sonido-tempo/transcode"
)

const testRate = 22050

func clickTrack(seconds float64, bpm float64) []float64 {
	n := int(seconds * testRate)
	signal := make([]float64, n)

	burst := int(0.02 * testRate)
	for beat := 0.0; beat < seconds; beat += 60.0 / bpm {
		start := int(beat * testRate)
		for i := 0; i < burst && start+i < n; i++ {
			t := float64(i) / testRate
			signal[start+i] = math.Sin(2*math.Pi*1000*t) * math.Exp(-t*200)
		}
	}
	return signal
}

func writeWAV(t *testing.T, dir, name string, samples []float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := transcode.WriteWAVFile(path, samples, testRate); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	return path
}

func newTestProcessor(t *testing.T, resultCache *cache.Cache) *Processor {
	t.Helper()

	cfg, err := config.TempoPreset(config.PresetSegment)
	if err != nil {
		t.Fatal(err)
	}
	detector, err := tempo.NewDetector(cfg, transcode.NewDecoder(nil))
	if err != nil {
		t.Fatalf("NewDetector: %v", err)
	}
	analyzer, err := activity.NewAnalyzer(nil, transcode.NewDecoder(nil))
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}

	batchCfg := config.DefaultBatchConfig()
	batchCfg.Workers = 2
	batchCfg.Progress = false

	p, err := NewProcessor(batchCfg, detector, analyzer, resultCache)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	return p
}

// audioFolder holds two click tracks, one silent file and a non-audio file.
func audioFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeWAV(t, dir, "fast.wav", clickTrack(12, 120))
	writeWAV(t, dir, "slow.wav", clickTrack(12, 90))
	writeWAV(t, dir, "silent.wav", make([]float64, 4*testRate))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCollectAudioFiles(t *testing.T) {
	dir := audioFolder(t)
	if err := os.Mkdir(filepath.Join(dir, "nested.wav"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := CollectAudioFiles(dir)
	if err != nil {
		t.Fatalf("CollectAudioFiles: %v", err)
	}

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	if strings.Join(names, ",") != "fast.wav,silent.wav,slow.wav" {
		t.Errorf("files = %v", names)
	}

	if _, err := CollectAudioFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing folder")
	}
}

func TestProcessAudioFolder(t *testing.T) {
	in := audioFolder(t)
	out := filepath.Join(t.TempDir(), "results")

	summary, err := newTestProcessor(t, nil).ProcessAudioFolder(context.Background(), in, out)
	if err != nil {
		t.Fatalf("ProcessAudioFolder: %v", err)
	}

	if summary.Processed != 2 || summary.Failed != 1 {
		t.Fatalf("processed %d failed %d, want 2 and 1: %+v", summary.Processed, summary.Failed, summary.Failures)
	}
	if summary.Failures[0].File != "silent.wav" {
		t.Errorf("failure = %+v", summary.Failures[0])
	}
	if summary.BPMStats == nil || summary.BPMStats.Count != 2 {
		t.Fatalf("bpm stats = %+v", summary.BPMStats)
	}

	var fast map[string]any
	data, err := os.ReadFile(filepath.Join(out, "fast_bpm.json"))
	if err != nil {
		t.Fatalf("per-file report missing: %v", err)
	}
	if err := json.Unmarshal(data, &fast); err != nil {
		t.Fatal(err)
	}
	if fast["audio_file"] != "fast.wav" || math.Abs(fast["bpm"].(float64)-120) > 2 {
		t.Errorf("fast report = %v", fast)
	}

	if _, err := os.Stat(filepath.Join(out, "silent_bpm.json")); !os.IsNotExist(err) {
		t.Error("undetected file should have no report")
	}

	var all AllResults
	data, err = os.ReadFile(filepath.Join(out, AllResultsFileName))
	if err != nil {
		t.Fatalf("aggregate report missing: %v", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		t.Fatal(err)
	}
	if all.TotalFiles != 2 || len(all.Results) != 2 || all.Results[0].AudioFile != "fast.wav" {
		t.Errorf("aggregate = %+v", all)
	}
}

func TestProcessAudioFolderUsesCache(t *testing.T) {
	resultCache, err := cache.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer resultCache.Close()

	in := audioFolder(t)
	p := newTestProcessor(t, resultCache)

	first, err := p.ProcessAudioFolder(context.Background(), in, t.TempDir())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Cached != 0 {
		t.Errorf("first run cached = %d, want 0", first.Cached)
	}

	second, err := p.ProcessAudioFolder(context.Background(), in, t.TempDir())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Processed != 2 || second.Cached != 2 || second.Failed != 1 {
		t.Errorf("second run = %+v", second)
	}
	if first.BPMStats.Median != second.BPMStats.Median {
		t.Errorf("cached median %v differs from %v", second.BPMStats.Median, first.BPMStats.Median)
	}
}

func TestProcessAudioFolderProgress(t *testing.T) {
	in := audioFolder(t)
	p := newTestProcessor(t, nil)

	var buf bytes.Buffer
	p.SetProgressOutput(&buf)

	summary, err := p.ProcessAudioFolder(context.Background(), in, t.TempDir())
	if err != nil {
		t.Fatalf("ProcessAudioFolder: %v", err)
	}
	if summary.Processed+summary.Failed != 3 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestProcessAudioFolderCancelled(t *testing.T) {
	in := audioFolder(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestProcessor(t, nil).ProcessAudioFolder(ctx, in, t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestProcessSegmentFolder(t *testing.T) {
	audioDir := t.TempDir()
	segmentDir := t.TempDir()
	out := t.TempDir()

	writeWAV(t, audioDir, "show.wav", clickTrack(10, 120))

	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(segmentDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("show_segments.json", `{"segments": [{"start_time": 0, "end_time": 6}, {"start_time": 6, "end_time": 30}]}`)
	write("ghost_segments.json", `{"segments": [{"start_time": 0, "end_time": 3}]}`)
	write("readme.json", `{}`)

	summary, err := newTestProcessor(t, nil).ProcessSegmentFolder(context.Background(), segmentDir, audioDir, out)
	if err != nil {
		t.Fatalf("ProcessSegmentFolder: %v", err)
	}

	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.Contains(summary.Failures[0].Error, ErrNoAudioFile.Error()) {
		t.Errorf("failure = %+v", summary.Failures[0])
	}

	var report tempo.SegmentReport
	data, err := os.ReadFile(filepath.Join(out, "show_segment_bpm.json"))
	if err != nil {
		t.Fatalf("segment report missing: %v", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if report.TotalSegments != 2 || report.Segments[0].BPM == nil || report.Segments[1].BPM != nil {
		t.Errorf("report = %+v", report)
	}
}

func TestFindAudioFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "take.flac"), []byte("fLaC"), 0o644); err != nil {
		t.Fatal(err)
	}

	if path, ok := FindAudioFile(dir, "take"); !ok || filepath.Base(path) != "take.flac" {
		t.Errorf("FindAudioFile = %q, %v", path, ok)
	}
	if _, ok := FindAudioFile(dir, "other"); ok {
		t.Error("found a file that does not exist")
	}
}

func TestProcessActivityFolder(t *testing.T) {
	in := audioFolder(t)
	out := t.TempDir()

	summary, err := newTestProcessor(t, nil).ProcessActivityFolder(context.Background(), in, out)
	if err != nil {
		t.Fatalf("ProcessActivityFolder: %v", err)
	}
	if summary.Processed != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	var report activity.Report
	data, err := os.ReadFile(filepath.Join(out, "silent"+ActivityReportSuffix))
	if err != nil {
		t.Fatalf("activity report missing: %v", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatal(err)
	}
	if report.ActivePercentage != 0 || len(report.SilenceIntervals) != 1 {
		t.Errorf("silent report = %+v", report)
	}

	var folder activity.Summary
	data, err = os.ReadFile(filepath.Join(out, activity.SummaryFileName))
	if err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	if err := json.Unmarshal(data, &folder); err != nil {
		t.Fatal(err)
	}
	if folder.TotalFiles != 3 || folder.Files[2].FileName != "silent.wav" {
		t.Errorf("folder summary = %+v", folder)
	}
}

func TestNewProcessorValidation(t *testing.T) {
	if _, err := NewProcessor(&config.BatchConfig{Workers: -1}, nil, nil, nil); err == nil {
		t.Error("expected error for negative workers")
	}

	p, err := NewProcessor(&config.BatchConfig{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewProcessor: %v", err)
	}
	if _, err := p.ProcessActivityFolder(context.Background(), t.TempDir(), t.TempDir()); err == nil {
		t.Error("expected error without an analyzer")
	}
	if _, err := p.ProcessAudioFolder(context.Background(), t.TempDir(), t.TempDir()); err == nil {
		t.Error("expected error without a detector")
	}
}
