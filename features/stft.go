package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// spectrogram is indexed [frame][bin].
type spectrogram [][]float64

func (s spectrogram) frames() int { return len(s) }

func (s spectrogram) bins() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// hann returns a periodic Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// frameCount is the number of centred frames for a signal of n samples.
func frameCount(n, hop int) int { return 1 + n/hop }

// padCentered pads y with half a frame on each side. edge repeats the
// boundary samples instead of zero-filling.
func padCentered(y []float64, frameLen int, edge bool) []float64 {
	half := frameLen / 2
	out := make([]float64, len(y)+2*half)
	copy(out[half:], y)
	if edge && len(y) > 0 {
		first, last := y[0], y[len(y)-1]
		for i := 0; i < half; i++ {
			out[i] = first
			out[len(out)-1-i] = last
		}
	}
	return out
}

// stft computes the magnitude spectrogram of y with centred, zero-padded
// frames of nfft samples and a periodic Hann window.
func stft(y []float64, nfft, hop int) spectrogram {
	return stftComplex(y, nfft, hop).magnitude()
}

// complexSpectrogram is the complex STFT, indexed [frame][bin].
type complexSpectrogram [][]complex128

// stftComplex is stft without discarding phase.
func stftComplex(y []float64, nfft, hop int) complexSpectrogram {
	padded := padCentered(y, nfft, false)
	n := frameCount(len(y), hop)
	win := hann(nfft)
	fft := fourier.NewFFT(nfft)

	frame := make([]float64, nfft)
	out := make(complexSpectrogram, n)
	for t := 0; t < n; t++ {
		start := t * hop
		for i := range frame {
			frame[i] = padded[start+i] * win[i]
		}
		out[t] = fft.Coefficients(nil, frame)
	}
	return out
}

func (s complexSpectrogram) magnitude() spectrogram {
	out := make(spectrogram, len(s))
	for t, row := range s {
		mag := make([]float64, len(row))
		for k, c := range row {
			mag[k] = cmplx.Abs(c)
		}
		out[t] = mag
	}
	return out
}

// istft inverts a centred STFT by windowed overlap-add, normalising by the
// summed squared window, and returns exactly length samples.
func istft(s complexSpectrogram, nfft, hop, length int) []float64 {
	frames := len(s)
	if limit := (length + 2*(nfft/2) + hop - 1) / hop; frames > limit {
		frames = limit
	}
	win := hann(nfft)
	fft := fourier.NewFFT(nfft)

	total := nfft + hop*max(frames-1, 0)
	y := make([]float64, total)
	norm := make([]float64, total)
	frame := make([]float64, nfft)
	for t := 0; t < frames; t++ {
		frame = fft.Sequence(frame, s[t])
		off := t * hop
		for i, v := range frame {
			y[off+i] += v / float64(nfft) * win[i]
			norm[off+i] += win[i] * win[i]
		}
	}
	for i, w := range norm {
		if w > tiny32 {
			y[i] /= w
		}
	}

	out := make([]float64, length)
	if start := nfft / 2; start < total {
		copy(out, y[start:])
	}
	return out
}

// tiny32 is the smallest normal float32, the floor below which masks and
// normalisers treat a value as zero.
const tiny32 = 0x1p-126

// power squares every magnitude.
func (s spectrogram) power() spectrogram {
	out := make(spectrogram, len(s))
	for t, row := range s {
		p := make([]float64, len(row))
		for k, v := range row {
			p[k] = v * v
		}
		out[t] = p
	}
	return out
}

// fftFrequencies returns the centre frequency of each rfft bin.
func fftFrequencies(sampleRate, nfft int) []float64 {
	out := make([]float64, nfft/2+1)
	for k := range out {
		out[k] = float64(k) * float64(sampleRate) / float64(nfft)
	}
	return out
}

// applyBank multiplies a filter bank [filter][bin] into every frame,
// returning [frame][filter].
func applyBank(bank [][]float64, s spectrogram) [][]float64 {
	out := make([][]float64, len(s))
	for t, row := range s {
		v := make([]float64, len(bank))
		for f, weights := range bank {
			var sum float64
			for k, w := range weights {
				if w != 0 {
					sum += w * row[k]
				}
			}
			v[f] = sum
		}
		out[t] = v
	}
	return out
}

// powerToDB converts power values to decibels relative to 1.0, flooring at
// amin and clipping everything more than topDB below the global peak.
func powerToDB(m [][]float64, amin, topDB float64) [][]float64 {
	out := make([][]float64, len(m))
	peak := math.Inf(-1)
	for i, row := range m {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = 10 * math.Log10(math.Max(amin, v))
			if r[j] > peak {
				peak = r[j]
			}
		}
		out[i] = r
	}
	if topDB > 0 {
		floor := peak - topDB
		for _, row := range out {
			for j, v := range row {
				if v < floor {
					row[j] = floor
				}
			}
		}
	}
	return out
}

// meanRows averages m[frame][k] over frames for each k.
func meanRows(m [][]float64, width int) []float64 {
	out := make([]float64, width)
	if len(m) == 0 {
		return out
	}
	for _, row := range m {
		for k := 0; k < width; k++ {
			out[k] += row[k]
		}
	}
	for k := range out {
		out[k] /= float64(len(m))
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
