// Package audiotest writes small WAV fixtures for tests.
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes interleaved samples in [-1, 1] as 16-bit PCM and returns
// the file path inside t.TempDir().
func WriteWAV(t testing.TB, name string, sampleRate, channels int, samples []float64) string {
	t.Helper()
	data := make([]int, len(samples))
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		data[i] = int(math.Round(s * 32767))
	}
	return writeEncoded(t, name, sampleRate, channels, 16, 1, data)
}

// WriteFloatWAV writes interleaved samples as 32-bit IEEE float WAV.
func WriteFloatWAV(t testing.TB, name string, sampleRate, channels int, samples []float64) string {
	t.Helper()
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(int32(math.Float32bits(float32(s))))
	}
	return writeEncoded(t, name, sampleRate, channels, 32, 3, data)
}

// WriteEncodedWAV writes raw sample words under an arbitrary fmt tag, for
// encodings the loader must hand to a transcoder.
func WriteEncodedWAV(t testing.TB, name string, sampleRate, bitDepth, format int, data []int) string {
	t.Helper()
	return writeEncoded(t, name, sampleRate, 1, bitDepth, format, data)
}

func writeEncoded(t testing.TB, name string, sampleRate, channels, bitDepth, format int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, format)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav encoder: %v", err)
	}
	return path
}

// Tone returns seconds of a mono sine at freq Hz and amplitude amp.
func Tone(sampleRate int, seconds, freq, amp float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// Cry returns a harmonic-rich tone with a slow pitch wobble, close enough to
// an infant cry to exercise every feature.
func Cry(sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	phase := 0.0
	for i := range out {
		t := float64(i) / float64(sampleRate)
		f0 := 420 + 60*math.Sin(2*math.Pi*1.5*t)
		phase += 2 * math.Pi * f0 / float64(sampleRate)
		v := 0.0
		for h := 1; h <= 5; h++ {
			v += math.Sin(float64(h)*phase) / float64(h)
		}
		out[i] = 0.3 * v
	}
	return out
}
