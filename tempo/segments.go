package tempo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SegmentsFileSuffix names segment definition files: <base>_segments.json
const SegmentsFileSuffix = "_segments.json"

// SegmentReportSuffix names segment BPM reports: <base>_segment_bpm.json
const SegmentReportSuffix = "_segment_bpm.json"

// Segment is a time range in seconds
type Segment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// SegmentsFile is the JSON document listing the segments of a recording.
// Unknown fields are ignored.
type SegmentsFile struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments reads a segments file
func LoadSegments(path string) (*SegmentsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read segments file: %w", err)
	}

	var segments SegmentsFile
	if err := json.Unmarshal(data, &segments); err != nil {
		return nil, fmt.Errorf("failed to parse segments file %s: %w", path, err)
	}
	if segments.Segments == nil {
		return nil, fmt.Errorf("segments file %s has no \"segments\" list", path)
	}

	return &segments, nil
}

// SegmentsBaseName returns the audio base name of a segments file, and
// false when the name does not end in _segments.json.
func SegmentsBaseName(path string) (string, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(strings.ToLower(name), SegmentsFileSuffix) {
		return "", false
	}
	return name[:len(name)-len(SegmentsFileSuffix)], true
}

// SegmentReportName returns <base>_segment_bpm.json for an audio file
func SegmentReportName(audioFile string) string {
	return baseName(audioFile) + SegmentReportSuffix
}

// FileReportName returns <base>_bpm.json for an audio file
func FileReportName(audioFile string) string {
	return baseName(audioFile) + "_bpm.json"
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
