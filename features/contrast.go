package features

import (
	"math"
	"sort"
)

// contrastBand is the rfft bin range [lo, hi) of one octave band, plus how
// many sorted values form its peak and valley estimates.
type contrastBand struct {
	lo, hi int
	n      int
}

// contrastBands splits the spectrum into nBands+1 octave bands starting at
// fmin: [0, fmin], [fmin, 2fmin], ... with the last band running to nyquist.
// Neighbouring bands share one edge bin, as in the usual octave-contrast
// formulation.
func contrastBands(freqs []float64, nBands int, fmin, quantile float64) []contrastBand {
	edges := make([]float64, nBands+2)
	for i := 1; i < len(edges); i++ {
		edges[i] = fmin * math.Pow(2, float64(i-1))
	}

	out := make([]contrastBand, 0, nBands+1)
	for k := 0; k <= nBands; k++ {
		lo, hi := -1, -1
		for i, f := range freqs {
			if f >= edges[k] && f <= edges[k+1] {
				if lo < 0 {
					lo = i
				}
				hi = i + 1
			}
		}
		if lo < 0 {
			// Empty band; fall back to the nearest bin so the row is defined.
			lo, hi = len(freqs)-1, len(freqs)
		}
		if k > 0 && lo > 0 {
			lo--
		}
		if k == nBands {
			hi = len(freqs)
		}
		members := hi - lo
		if k < nBands && hi-lo > 1 {
			hi--
		}
		n := int(math.Max(1, math.RoundToEven(quantile*float64(members))))
		out = append(out, contrastBand{lo: lo, hi: hi, n: n})
	}
	return out
}

// spectralContrast returns, per band and frame, the dB difference between the
// mean of the top quantile and the mean of the bottom quantile of magnitudes.
func spectralContrast(mag spectrogram, bands []contrastBand, amin, topDB float64) [][]float64 {
	peaks := make([][]float64, mag.frames())
	valleys := make([][]float64, mag.frames())
	buf := make([]float64, 0, mag.bins())
	for t, row := range mag {
		p := make([]float64, len(bands))
		v := make([]float64, len(bands))
		for b, band := range bands {
			buf = append(buf[:0], row[band.lo:band.hi]...)
			sort.Float64s(buf)
			n := band.n
			if n > len(buf) {
				n = len(buf)
			}
			v[b] = mean(buf[:n])
			p[b] = mean(buf[len(buf)-n:])
		}
		peaks[t] = p
		valleys[t] = v
	}

	peakDB := powerToDB(peaks, amin, topDB)
	valleyDB := powerToDB(valleys, amin, topDB)
	out := make([][]float64, mag.frames())
	for t := range out {
		row := make([]float64, len(bands))
		for b := range row {
			row[b] = peakDB[t][b] - valleyDB[t][b]
		}
		out[t] = row
	}
	return out
}
