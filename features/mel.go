package features

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

func hzToMel(f float64) float64 {
	if f >= melMinLogHz {
		return melMinLogMel + math.Log(f/melMinLogHz)/melLogStep
	}
	return f / melFSp
}

func melToHz(m float64) float64 {
	if m >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(m-melMinLogMel))
	}
	return melFSp * m
}

// melBank builds nMels triangular filters over the rfft bins between fmin
// and fmax, area-normalised so each filter has constant energy per Hz.
func melBank(sampleRate, nfft, nMels int, fmin, fmax float64) [][]float64 {
	fftFreqs := fftFrequencies(sampleRate, nfft)

	lo, hi := hzToMel(fmin), hzToMel(fmax)
	melF := make([]float64, nMels+2)
	for i := range melF {
		melF[i] = melToHz(lo + (hi-lo)*float64(i)/float64(nMels+1))
	}

	bank := make([][]float64, nMels)
	for i := 0; i < nMels; i++ {
		lowerW := melF[i+1] - melF[i]
		upperW := melF[i+2] - melF[i+1]
		enorm := 2.0 / (melF[i+2] - melF[i])
		row := make([]float64, len(fftFreqs))
		for k, f := range fftFreqs {
			lower := (f - melF[i]) / lowerW
			upper := (melF[i+2] - f) / upperW
			w := math.Max(0, math.Min(lower, upper))
			row[k] = w * enorm
		}
		bank[i] = row
	}
	return bank
}

// dctMatrix returns the first n rows of the orthonormal DCT-II basis for
// inputs of length size.
func dctMatrix(n, size int) [][]float64 {
	out := make([][]float64, n)
	for k := 0; k < n; k++ {
		row := make([]float64, size)
		scale := math.Sqrt(2.0 / float64(size))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(size))
		}
		for j := 0; j < size; j++ {
			row[j] = scale * math.Cos(math.Pi/float64(size)*(float64(j)+0.5)*float64(k))
		}
		out[k] = row
	}
	return out
}

// mfcc computes cepstral coefficients per frame from a power spectrogram.
func mfcc(power spectrogram, mel, dct [][]float64, amin, topDB float64) [][]float64 {
	melDB := powerToDB(applyBank(mel, power), amin, topDB)
	out := make([][]float64, len(melDB))
	for t, frame := range melDB {
		c := make([]float64, len(dct))
		for k, basis := range dct {
			var sum float64
			for j, b := range basis {
				sum += b * frame[j]
			}
			c[k] = sum
		}
		out[t] = c
	}
	return out
}
