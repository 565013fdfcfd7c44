package features

import "math"

// hannBandwidth is the equivalent noise bandwidth of a Hann window in bins.
const hannBandwidth = 1.50018310546875

// cqtQ is the quality factor of a constant-Q bank with binsPerOctave bins:
// each filter's bandwidth reaches halfway to its neighbours.
func cqtQ(binsPerOctave int) float64 {
	r2 := math.Pow(2, 2/float64(binsPerOctave))
	return (r2 + 1) / (r2 - 1)
}

// cqtFilter is one bin's Hann-windowed complex exponential, pre-scaled so
// that bins of different lengths compare directly.
type cqtFilter struct {
	lo     int // first tap relative to the frame centre
	re, im []float64
}

func newCQTFilter(freq, q float64, sampleRate int) cqtFilter {
	length := q * float64(sampleRate) / freq
	lo := int(math.Floor(-length / 2))
	hi := int(math.Floor(length / 2))
	n := hi - lo
	w := hann(n)
	var sum float64
	for _, v := range w {
		sum += v
	}
	// L1-normalised taps, then scaled by the square root of the length.
	scale := math.Sqrt(length) / sum
	f := cqtFilter{lo: lo, re: make([]float64, n), im: make([]float64, n)}
	for j := range w {
		phase := 2 * math.Pi * freq * float64(lo+j) / float64(sampleRate)
		f.re[j] = scale * w[j] * math.Cos(phase)
		f.im[j] = -scale * w[j] * math.Sin(phase)
	}
	return f
}

// constantQ returns the constant-Q magnitude of y, indexed [frame][bin], for
// nBins geometrically spaced bins from fmin. Frames are centred every hop
// samples and y is zero outside its bounds.
func constantQ(y []float64, sampleRate, hop int, fmin float64, nBins, binsPerOctave int) [][]float64 {
	q := cqtQ(binsPerOctave)
	filters := make([]cqtFilter, nBins)
	for k := range filters {
		freq := fmin * math.Pow(2, float64(k)/float64(binsPerOctave))
		filters[k] = newCQTFilter(freq, q, sampleRate)
	}

	n := frameCount(len(y), hop)
	out := make([][]float64, n)
	for t := range out {
		row := make([]float64, nBins)
		centre := t * hop
		for k, f := range filters {
			start := centre + f.lo
			j0, j1 := 0, len(f.re)
			if start < 0 {
				j0 = -start
			}
			if end := len(y) - start; end < j1 {
				j1 = end
			}
			var re, im float64
			for j := j0; j < j1; j++ {
				v := y[start+j]
				re += v * f.re[j]
				im += v * f.im[j]
			}
			row[k] = math.Hypot(re, im)
		}
		out[t] = row
	}
	return out
}

// foldChroma sums constant-Q bins into nChroma pitch classes. Each class
// takes the binsPerOctave/nChroma bins centred on it; fmin fixes which class
// bin 0 belongs to, and class 0 is C.
func foldChroma(cq [][]float64, binsPerOctave, nChroma int, fmin float64) [][]float64 {
	merge := binsPerOctave / nChroma
	midi := 12*(math.Log2(fmin)-math.Log2(440)) + 69
	roll := int(math.Round(math.Mod(midi, 12) * float64(nChroma) / 12))
	out := make([][]float64, len(cq))
	for t, row := range cq {
		c := make([]float64, nChroma)
		for k, v := range row {
			class := ((k+merge/2)%binsPerOctave)/merge + roll
			class = ((class % nChroma) + nChroma) % nChroma
			c[class] += v
		}
		out[t] = c
	}
	return out
}

// cqtChroma is the peak-normalised constant-Q chroma of y. tuning shifts
// fmin by fractions of a constant-Q bin.
func cqtChroma(y []float64, sampleRate int, p Params, tuning float64) [][]float64 {
	bpo := p.CQTBinsPerOctave
	fmin := p.CQTFMin * math.Pow(2, tuning/float64(bpo))
	cq := constantQ(y, sampleRate, p.Hop, fmin, p.CQTOctaves*bpo, bpo)
	out := foldChroma(cq, bpo, p.NChroma, p.CQTFMin)
	for _, frame := range out {
		normalizePeak(frame)
	}
	return out
}

// cqtTopCutoff is the upper band edge of the highest constant-Q bin at the
// largest tuning offset.
func cqtTopCutoff(p Params) float64 {
	bpo := float64(p.CQTBinsPerOctave)
	top := p.CQTFMin * math.Pow(2, (float64(p.CQTOctaves)*bpo-1+0.5)/bpo)
	return top * (1 + 0.5*hannBandwidth/cqtQ(p.CQTBinsPerOctave))
}
