package features

import "math"

// harmonicMask separates the magnitude spectrogram into harmonic (smooth in
// time) and percussive (smooth in frequency) parts with median filters, and
// returns the soft mask selecting the harmonic part. With a margin of 1 the
// two masks partition the spectrogram, so bins where both filters are zero
// are split evenly.
func harmonicMask(mag spectrogram, kernel int, power, margin float64) spectrogram {
	frames, bins := mag.frames(), mag.bins()
	harm := make(spectrogram, frames)
	perc := make(spectrogram, frames)
	for t := range harm {
		harm[t] = make([]float64, bins)
		perc[t] = make([]float64, bins)
	}

	window := make([]float64, kernel)
	half := kernel / 2

	// Harmonic: median across time for each bin.
	series := make([]float64, frames)
	for k := 0; k < bins; k++ {
		for t := 0; t < frames; t++ {
			series[t] = mag[t][k]
		}
		for t := 0; t < frames; t++ {
			for o := -half; o <= half; o++ {
				window[o+half] = series[reflectIndex(t+o, frames)]
			}
			harm[t][k] = median(window)
		}
	}

	// Percussive: median across frequency for each frame.
	for t := 0; t < frames; t++ {
		row := mag[t]
		for k := 0; k < bins; k++ {
			for o := -half; o <= half; o++ {
				window[o+half] = row[reflectIndex(k+o, bins)]
			}
			perc[t][k] = median(window)
		}
	}

	split := margin == 1
	mask := make(spectrogram, frames)
	for t := range mask {
		m := make([]float64, bins)
		for k := range m {
			m[k] = softMask(harm[t][k], perc[t][k]*margin, power, split)
		}
		mask[t] = m
	}
	return mask
}

// softMask returns x^p / (x^p + y^p). When both inputs are ~0 it returns 0.5
// if split is set and 0 otherwise.
func softMask(x, y, p float64, split bool) float64 {
	z := math.Max(x, y)
	if z < tiny32 {
		if split {
			return 0.5
		}
		return 0
	}
	xp := math.Pow(x/z, p)
	yp := math.Pow(y/z, p)
	return xp / (xp + yp)
}

// reflectIndex mirrors i into [0, n) including the edge sample
// (d c b a | a b c d | d c b a).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// median returns the middle element of an odd-length window using Wirth's
// selection. The window is reordered in place.
func median(w []float64) float64 {
	k := len(w) / 2
	lo, hi := 0, len(w)-1
	for lo < hi {
		x := w[k]
		i, j := lo, hi
		for i <= j {
			for w[i] < x {
				i++
			}
			for x < w[j] {
				j--
			}
			if i <= j {
				w[i], w[j] = w[j], w[i]
				i++
				j--
			}
		}
		if j < k {
			lo = i
		}
		if k < i {
			hi = j
		}
	}
	return w[k]
}

// masked scales every bin of s by the real mask m, keeping phase.
func (s complexSpectrogram) masked(m spectrogram) complexSpectrogram {
	out := make(complexSpectrogram, len(s))
	for t, row := range s {
		r := make([]complex128, len(row))
		for k, v := range row {
			r[k] = v * complex(m[t][k], 0)
		}
		out[t] = r
	}
	return out
}
