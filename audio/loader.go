package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	resampling "github.com/tphakala/go-audio-resampling"
)

// ErrNoBackend means the file is not WAV and no ffmpeg binary is available
// to transcode it.
var ErrNoBackend = errors.New("no decoding backend for this format (is ffmpeg installed?)")

var (
	errNotWAV = errors.New("not a RIFF/WAVE file")
	// errTranscode marks a valid WAV whose encoding is not decoded in-process.
	errTranscode = errors.New("wav encoding needs transcoding")
)

// WAV format tags from the fmt chunk.
const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// Loader decodes audio files into mono signals at a fixed sample rate.
type Loader struct {
	sampleRate int
	ffmpeg     string
	log        logrus.FieldLogger
}

// NewLoader returns a loader producing signals at sampleRate. ffmpeg names the
// transcoder used for non-WAV input; empty disables transcoding.
func NewLoader(sampleRate int, ffmpeg string, log logrus.FieldLogger) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{sampleRate: sampleRate, ffmpeg: ffmpeg, log: log}
}

// SampleRate is the rate every loaded signal is converted to.
func (l *Loader) SampleRate() int { return l.sampleRate }

// Load reads path and returns its mono samples at the loader's sample rate.
// Every failure is a *DecodeError.
func (l *Loader) Load(ctx context.Context, path string) (*Signal, error) {
	if l.sampleRate <= 0 {
		return nil, &DecodeError{Path: path, Err: fmt.Errorf("invalid target sample rate %d", l.sampleRate)}
	}

	samples, rate, err := decodeWAVFile(path)
	if errors.Is(err, errNotWAV) || errors.Is(err, errTranscode) {
		samples, rate, err = l.transcode(ctx, path)
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if rate != l.sampleRate {
		l.log.WithFields(logrus.Fields{"from": rate, "to": l.sampleRate}).Debug("resampling")
		samples, err = resample(samples, rate, l.sampleRate)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}

	sig := &Signal{Samples: samples, SampleRate: l.sampleRate}
	l.log.WithFields(logrus.Fields{
		"path":        filepath.Base(path),
		"duration_s":  fmt.Sprintf("%.2f", sig.Seconds()),
		"sample_rate": sig.SampleRate,
	}).Info("audio loaded")
	return sig, nil
}

// transcode converts a non-WAV file to 16-bit mono WAV at the target rate
// with ffmpeg, then decodes the result.
func (l *Loader) transcode(ctx context.Context, path string) ([]float64, int, error) {
	if l.ffmpeg == "" {
		return nil, 0, ErrNoBackend
	}
	bin, err := exec.LookPath(l.ffmpeg)
	if err != nil {
		return nil, 0, ErrNoBackend
	}

	dir, err := os.MkdirTemp("", "cry-decode-")
	if err != nil {
		return nil, 0, err
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "decoded.wav")

	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(l.sampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return nil, 0, fmt.Errorf("ffmpeg: %w: %s", err, string(msg))
	}
	l.log.WithField("path", filepath.Base(path)).Debug("transcoded with ffmpeg")
	return decodeWAVFile(out)
}

func decodeWAVFile(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return decodeWAV(f)
}

// decodeWAV reads integer PCM or 32-bit IEEE float WAV data, averages
// channels to mono and scales samples into [-1, 1]. Other encodings report
// errTranscode.
func decodeWAV(r io.ReadSeeker) ([]float64, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errNotWAV
	}
	depth := int(dec.BitDepth)
	var sample func(v int) float64
	switch {
	case dec.WavAudioFormat == wavFormatPCM && depth == 8:
		// 8-bit WAV is unsigned.
		sample = func(v int) float64 { return float64(v-128) / 128 }
	case dec.WavAudioFormat == wavFormatPCM && depth > 8 && depth <= 32:
		scale := float64(int64(1) << (depth - 1))
		sample = func(v int) float64 { return float64(v) / scale }
	case dec.WavAudioFormat == wavFormatIEEEFloat && depth == 32:
		// The decoder hands back the raw 32-bit words.
		sample = func(v int) float64 { return float64(math.Float32frombits(uint32(int32(v)))) }
	default:
		return nil, 0, fmt.Errorf("%w: format %d, %d bits", errTranscode, dec.WavAudioFormat, depth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("read PCM: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, errors.New("missing PCM format")
	}
	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, 0, fmt.Errorf("invalid channel count %d", channels)
	}

	frames := len(buf.Data) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			v := sample(buf.Data[i*channels+c])
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, 0, fmt.Errorf("non-finite sample at frame %d", i)
			}
			sum += v
		}
		mono[i] = sum / float64(channels)
	}
	return mono, buf.Format.SampleRate, nil
}

func resample(samples []float64, from, to int) ([]float64, error) {
	if from <= 0 {
		return nil, fmt.Errorf("invalid source sample rate %d", from)
	}
	if len(samples) == 0 || from == to {
		return samples, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return out, nil
}
