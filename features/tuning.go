package features

import (
	"math"
	"sort"
)

// pitchPeaks finds spectral peaks per frame of s between fmin and fmax and
// returns their parabolically interpolated frequencies and magnitudes. A bin
// is a peak when it exceeds threshold times its frame's maximum, is strictly
// above the bin below and at least the bin above.
func pitchPeaks(s spectrogram, sampleRate, nfft int, fmin, fmax, threshold float64) (pitches, mags []float64) {
	fmax = math.Min(fmax, float64(sampleRate)/2)
	freqs := fftFrequencies(sampleRate, nfft)
	for _, row := range s {
		n := len(row)
		if n < 3 {
			continue
		}
		peak := 0.0
		for _, v := range row {
			peak = math.Max(peak, v)
		}
		ref := threshold * peak
		gated := func(k int) float64 {
			if k < 0 {
				k = 0
			}
			if k >= n {
				k = n - 1
			}
			if row[k] > ref {
				return row[k]
			}
			return 0
		}
		for k := 0; k < n; k++ {
			if freqs[k] < fmin || freqs[k] >= fmax {
				continue
			}
			x := gated(k)
			if !(x > gated(k-1) && x >= gated(k+1)) {
				continue
			}
			shift := parabolicShift(row, k)
			pitches = append(pitches, (float64(k)+shift)*float64(sampleRate)/float64(nfft))
			mags = append(mags, row[k]+0.5*gradient(row, k)*shift)
		}
	}
	return pitches, mags
}

// parabolicShift is the offset of the vertex of the parabola through bins
// k-1, k and k+1, or 0 at the edges and where the fit is unstable.
func parabolicShift(row []float64, k int) float64 {
	if k == 0 || k == len(row)-1 {
		return 0
	}
	a := row[k+1] + row[k-1] - 2*row[k]
	b := (row[k+1] - row[k-1]) / 2
	if math.Abs(b) >= math.Abs(a) {
		return 0
	}
	return -b / a
}

// gradient is the central difference at k, one-sided at the edges.
func gradient(row []float64, k int) float64 {
	switch {
	case len(row) < 2:
		return 0
	case k == 0:
		return row[1] - row[0]
	case k == len(row)-1:
		return row[k] - row[k-1]
	}
	return (row[k+1] - row[k-1]) / 2
}

// estimateTuning returns the deviation of s from A440 equal temperament in
// fractions of a bin at binsPerOctave, from the stronger half of its peaks.
func estimateTuning(s spectrogram, sampleRate, nfft, binsPerOctave int, p Params) float64 {
	pitches, mags := pitchPeaks(s, sampleRate, nfft, p.PitchFMin, p.PitchFMax, p.PitchThreshold)
	floor := 0.0
	if len(mags) > 0 {
		floor = medianOf(append([]float64(nil), mags...))
	}
	var strong []float64
	for i, f := range pitches {
		if f > 0 && mags[i] >= floor {
			strong = append(strong, f)
		}
	}
	return pitchTuning(strong, p.TuningResolution, binsPerOctave)
}

// pitchTuning histograms how far each frequency lies from its nearest
// equal-tempered bin and returns the left edge of the fullest histogram bin.
func pitchTuning(freqs []float64, resolution float64, binsPerOctave int) float64 {
	var residuals []float64
	for _, f := range freqs {
		if f <= 0 {
			continue
		}
		r := math.Mod(float64(binsPerOctave)*math.Log2(f/(440.0/16)), 1)
		if r < 0 {
			r++
		}
		if r >= 0.5 {
			r--
		}
		residuals = append(residuals, r)
	}
	if len(residuals) == 0 {
		return 0
	}

	nbins := int(math.Ceil(1 / resolution))
	step := 1.0 / float64(nbins)
	edges := make([]float64, nbins+1)
	for i := range edges {
		edges[i] = float64(i)*step - 0.5
	}
	edges[nbins] = 0.5

	counts := make([]int, nbins)
	for _, r := range residuals {
		i := sort.Search(len(edges), func(j int) bool { return edges[j] > r }) - 1
		if i == nbins && r == edges[nbins] {
			i--
		}
		if i >= 0 && i < nbins {
			counts[i]++
		}
	}
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return edges[best]
}

// medianOf returns the median of v, averaging the middle pair for even
// lengths. v is sorted in place.
func medianOf(v []float64) float64 {
	sort.Float64s(v)
	n := len(v)
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
