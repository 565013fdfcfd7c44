package features

import "math"

// zeroCrossingRate returns, per centred frame (edge padded), the fraction of
// samples whose sign differs from the previous sample. Values within
// threshold of zero count as positive.
func zeroCrossingRate(y []float64, frameLen, hop int, threshold float64) []float64 {
	padded := padCentered(y, frameLen, true)
	n := frameCount(len(y), hop)
	out := make([]float64, n)
	neg := func(v float64) bool {
		if math.Abs(v) <= threshold {
			return false
		}
		return math.Signbit(v)
	}
	for t := 0; t < n; t++ {
		frame := padded[t*hop : t*hop+frameLen]
		crossings := 0
		for i := 1; i < len(frame); i++ {
			if neg(frame[i]) != neg(frame[i-1]) {
				crossings++
			}
		}
		out[t] = float64(crossings) / float64(frameLen)
	}
	return out
}

// rmsEnergy returns the root-mean-square of each centred, zero padded frame.
func rmsEnergy(y []float64, frameLen, hop int) []float64 {
	padded := padCentered(y, frameLen, false)
	n := frameCount(len(y), hop)
	out := make([]float64, n)
	for t := 0; t < n; t++ {
		var sum float64
		for _, v := range padded[t*hop : t*hop+frameLen] {
			sum += v * v
		}
		out[t] = math.Sqrt(sum / float64(frameLen))
	}
	return out
}

// centroidBandwidth returns the per-frame spectral centroid and second-order
// spectral bandwidth of a magnitude spectrogram. Silent frames yield zeros.
func centroidBandwidth(mag spectrogram, freqs []float64) (centroid, bandwidth []float64) {
	centroid = make([]float64, mag.frames())
	bandwidth = make([]float64, mag.frames())
	for t, row := range mag {
		var total float64
		for _, v := range row {
			total += math.Abs(v)
		}
		if total < math.SmallestNonzeroFloat64 {
			continue
		}
		var c float64
		for k, v := range row {
			c += freqs[k] * v / total
		}
		var bw float64
		for k, v := range row {
			d := freqs[k] - c
			bw += v / total * d * d
		}
		centroid[t] = c
		bandwidth[t] = math.Sqrt(bw)
	}
	return centroid, bandwidth
}
