package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-tempo/logging"
)

// ErrNoSamples is returned when decoding succeeds but yields no audio.
var ErrNoSamples = errors.New("no audio samples decoded")

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64     `json:"-"` // Mono samples in [-1, 1]
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
	Metadata   *FileMetadata `json:"metadata,omitempty"`
	Tags       *TagMetadata  `json:"tags,omitempty"`
}

// DurationSeconds returns the exact duration len(PCM)/SampleRate.
func (a *AudioData) DurationSeconds() float64 {
	if a == nil || a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.PCM)) / float64(a.SampleRate)
}

// FileMetadata describes where decoded audio came from
type FileMetadata struct {
	Path        string    `json:"path"`
	Decoder     string    `json:"decoder"` // "ffmpeg" or "wav"
	Codec       string    `json:"codec,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Bitrate     int       `json:"bitrate,omitempty"`
	InputRate   int       `json:"input_sample_rate,omitempty"`
	InputChans  int       `json:"input_channels,omitempty"`
	BitDepth    int       `json:"bit_depth,omitempty"`
	DecodedAt   time.Time `json:"decoded_at"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	// TargetSampleRate resamples the output; 0 keeps the file's native rate.
	TargetSampleRate int           `json:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration"`
	ResampleQuality  string        `json:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `json:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout"`
	// NativeWAV decodes PCM WAV files in-process instead of through ffmpeg.
	NativeWAV        bool          `json:"native_wav"`
	// ReadTags attaches embedded title/artist/album tags when present.
	ReadTags         bool          `json:"read_tags"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 0,
		MaxDuration:      0, // No limit
		ResampleQuality:  "medium",
		FFmpegPath:       "ffmpeg",  // Assume in PATH
		FFprobePath:      "ffprobe", // Assume in PATH
		Timeout:          2 * time.Minute,
		NativeWAV:        true,
		ReadTags:         true,
	}
}

// Decoder turns audio files into mono float64 samples, natively for PCM WAV
// and through FFmpeg for everything else.
type Decoder struct {
	config *DecoderConfig
	logger logging.Logger
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// GetConfig returns the decoder configuration
func (d *Decoder) GetConfig() DecoderConfig {
	return *d.config
}

// DecodeFile decodes an audio file to mono PCM
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "DecodeFile",
		"filename": filename,
	})

	logger.Debug("Starting audio file decode")

	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("audio file not accessible: %w", err)
	}

	var (
		audioData *AudioData
		err       error
	)

	if d.config.NativeWAV && strings.EqualFold(filepath.Ext(filename), ".wav") {
		audioData, err = d.decodeNativeWAV(filename)
		if err != nil {
			logger.Debug("Native WAV decode unavailable, falling back to ffmpeg", logging.Fields{
				"reason": err.Error(),
			})
			audioData = nil
		}
	}

	if audioData == nil {
		audioData, err = d.decodeFileWithFFmpeg(ctx, filename)
		if err != nil {
			logger.Error(err, "Failed to decode audio file")
			return nil, err
		}
	}

	if d.config.ReadTags {
		if tags, err := ReadTagsFile(filename); err == nil {
			audioData.Tags = tags
		}
	}

	logger.Debug("Audio file decoded", logging.Fields{
		"decoder":     audioData.Metadata.Decoder,
		"sample_rate": audioData.SampleRate,
		"samples":     len(audioData.PCM),
	})

	return audioData, nil
}

// DecodeBytes decodes an in-memory audio file with FFmpeg
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data")
	}

	metadata, err := d.probe(ctx, "pipe:0", data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	args := append([]string{"-i", "pipe:0"}, d.buildFFmpegArgs(metadata)...)
	args = append(args, "pipe:1")

	output, err := d.runFFmpeg(ctx, args, data, logger)
	if err != nil {
		return nil, err
	}

	return d.processFFmpegOutput(output, metadata, "")
}

// DecodeReader decodes audio from an io.Reader. PCM WAV streams are decoded
// in-process when NativeWAV is set; anything else goes through FFmpeg.
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader) (*AudioData, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if d.config.NativeWAV {
		if audioData, err := DecodeWAV(bytes.NewReader(data)); err == nil {
			audioData.Metadata.Path = "pipe:0"
			if limited, err := d.applyNativeLimits(audioData); err == nil {
				return limited, nil
			}
		}
	}

	return d.DecodeBytes(ctx, data)
}

// Probe runs ffprobe on a file
func (d *Decoder) Probe(ctx context.Context, filename string) (*AudioMetadata, error) {
	return d.probe(ctx, filename, nil)
}

// probe uses ffprobe to describe the first audio stream. When stdin is
// non-nil the input is read from it.
func (d *Decoder) probe(ctx context.Context, input string, stdin []byte) (*AudioMetadata, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0", // First audio stream only
		input,
	}

	cmd := exec.CommandContext(ctx, d.config.FFprobePath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("no audio streams found")
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// decodeFileWithFFmpeg probes then decodes a file through ffmpeg
func (d *Decoder) decodeFileWithFFmpeg(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "decodeFileWithFFmpeg",
		"filename": filename,
	})

	metadata, err := d.Probe(ctx, filename)
	if err != nil {
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	args := append([]string{"-i", filename}, d.buildFFmpegArgs(metadata)...)
	args = append(args, "pipe:1")

	output, err := d.runFFmpeg(ctx, args, nil, logger)
	if err != nil {
		return nil, err
	}

	return d.processFFmpegOutput(output, metadata, filename)
}

func (d *Decoder) runFFmpeg(ctx context.Context, args []string, stdin []byte, logger logging.Logger) ([]byte, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	return output, nil
}

// outputRate is the rate ffmpeg is asked to produce for an input
func (d *Decoder) outputRate(metadata *AudioMetadata) int {
	if d.config.TargetSampleRate > 0 {
		return d.config.TargetSampleRate
	}
	return metadata.SampleRate
}

// buildFFmpegArgs builds the ffmpeg arguments based on configuration and metadata
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	rate := d.outputRate(metadata)
	args := []string{
		"-vn",         // No video
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", "1", // Downmix to mono
		"-ar", strconv.Itoa(rate),
	}

	if d.config.ResampleQuality != "" && metadata.SampleRate != rate {
		switch d.config.ResampleQuality {
		case "fast":
			args = append(args, "-af", "aresample=resampler=soxr:precision=16")
		case "medium":
			args = append(args, "-af", "aresample=resampler=soxr:precision=20")
		case "high":
			args = append(args, "-af", "aresample=resampler=soxr:precision=28")
		}
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error")

	return args
}

// processFFmpegOutput processes the raw output from ffmpeg
func (d *Decoder) processFFmpegOutput(output []byte, inputMetadata *AudioMetadata, path string) (*AudioData, error) {
	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	rate := d.outputRate(inputMetadata)

	return &AudioData{
		PCM:        samples,
		SampleRate: rate,
		Channels:   1,
		Duration:   samplesDuration(len(samples), rate),
		Metadata: &FileMetadata{
			Path:        path,
			Decoder:     "ffmpeg",
			Codec:       inputMetadata.Codec,
			ContentType: contentTypeFromCodec(inputMetadata.Codec),
			Bitrate:     inputMetadata.Bitrate,
			InputRate:   inputMetadata.SampleRate,
			InputChans:  inputMetadata.Channels,
			DecodedAt:   time.Now(),
		},
	}, nil
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// contentTypeFromCodec maps codec to content type
func contentTypeFromCodec(codec string) string {
	switch codec {
	case "aac":
		return "audio/aac"
	case "mp3":
		return "audio/mpeg"
	case "flac":
		return "audio/flac"
	case "vorbis", "ogg":
		return "audio/ogg"
	case "opus":
		return "audio/opus"
	case "pcm_s16le", "pcm_s24le", "pcm_s32le", "pcm_f32le", "pcm_u8":
		return "audio/wav"
	default:
		return "audio/unknown"
	}
}

func samplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		// Trim to multiple of 8 bytes
		data = data[:len(data)-(len(data)%8)]
	}

	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration and checks that
// ffmpeg and ffprobe can be executed.
func (d *Decoder) ValidateConfig(ctx context.Context) error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", d.config.TargetSampleRate)
	}

	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}

	for _, bin := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
			return fmt.Errorf("%s not available: %w", bin, err)
		}
	}

	return nil
}

// SupportedExtensions lists the file extensions batch processing picks up.
func SupportedExtensions() []string {
	return []string{".wav", ".mp3", ".flac", ".m4a", ".ogg"}
}

// IsSupported reports whether a path has a supported audio extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions() {
		if ext == supported {
			return true
		}
	}
	return false
}
