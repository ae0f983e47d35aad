package transcode

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAV format codes
const (
	wavFormatPCM = 1
)

var (
	// ErrNotWAV is returned for input without a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a WAV file")

	// ErrUnsupportedWAV is returned for WAV encodings other than integer PCM.
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// DecodeWAV reads an integer PCM WAV stream and downmixes it to mono
// samples in [-1, 1].
func DecodeWAV(r io.ReadSeeker) (*AudioData, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, ErrNotWAV
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: format code %d", ErrUnsupportedWAV, decoder.WavAudioFormat)
	}

	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedWAV, bitDepth)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("could not read PCM buffer: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing format information", ErrUnsupportedWAV)
	}

	mono := downmix(buf, bitDepth)
	if len(mono) == 0 {
		return nil, ErrNoSamples
	}

	return &AudioData{
		PCM:        mono,
		SampleRate: buf.Format.SampleRate,
		Channels:   1,
		Duration:   samplesDuration(len(mono), buf.Format.SampleRate),
		Metadata: &FileMetadata{
			Decoder:     "wav",
			Codec:       fmt.Sprintf("pcm_%d", bitDepth),
			ContentType: "audio/wav",
			InputRate:   buf.Format.SampleRate,
			InputChans:  buf.Format.NumChannels,
			BitDepth:    bitDepth,
			DecodedAt:   time.Now(),
		},
	}, nil
}

// downmix averages interleaved integer channels into normalized mono.
// 8-bit WAV samples are unsigned and centred on 128.
func downmix(buf *audio.IntBuffer, bitDepth int) []float64 {
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels

	scale := math.Ldexp(1, bitDepth-1)
	offset := 0.0
	if bitDepth == 8 {
		offset = 128
	}

	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += (float64(buf.Data[i*channels+c]) - offset) / scale
		}
		mono[i] = sum / float64(channels)
	}

	return mono
}

func (d *Decoder) decodeNativeWAV(filename string) (*AudioData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	defer file.Close()

	audioData, err := DecodeWAV(file)
	if err != nil {
		return nil, err
	}
	audioData.Metadata.Path = filename

	return d.applyNativeLimits(audioData)
}

// applyNativeLimits enforces the target rate and MaxDuration on natively
// decoded audio.
func (d *Decoder) applyNativeLimits(audioData *AudioData) (*AudioData, error) {
	if d.config.TargetSampleRate > 0 && d.config.TargetSampleRate != audioData.SampleRate {
		return nil, fmt.Errorf("resampling %d Hz to %d Hz requires ffmpeg",
			audioData.SampleRate, d.config.TargetSampleRate)
	}
	if d.config.MaxDuration > 0 {
		limit := int(d.config.MaxDuration.Seconds() * float64(audioData.SampleRate))
		if limit < len(audioData.PCM) {
			audioData.PCM = audioData.PCM[:limit]
			audioData.Duration = samplesDuration(limit, audioData.SampleRate)
		}
	}

	return audioData, nil
}

// EncodeWAV writes mono samples as 16-bit PCM. Samples are clipped to [-1, 1].
func EncodeWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	encoder := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("data writing error: %w", err)
	}
	return encoder.Close()
}

// WriteWAVFile creates path and writes mono samples to it as 16-bit PCM.
func WriteWAVFile(path string, samples []float64, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output file creation error: %w", err)
	}

	if err := EncodeWAV(file, samples, sampleRate); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
