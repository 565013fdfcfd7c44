package features

import "math"

// chromaBank builds the pitch-class filter bank [chroma][bin]. Each bin is a
// Gaussian bump around its pitch class, L2-normalised per bin, weighted
// towards ctrOctave and rotated so row 0 is C.
func chromaBank(sampleRate, nfft, nChroma int, tuning, ctrOctave, octWidth float64) [][]float64 {
	nc := float64(nChroma)
	a440 := 440.0 * math.Pow(2, tuning/nc)

	// Bin 0 (DC) gets a synthetic position 1.5 octaves below bin 1.
	frqbins := make([]float64, nfft)
	for k := 1; k < nfft; k++ {
		f := float64(k) * float64(sampleRate) / float64(nfft)
		frqbins[k] = nc * math.Log2(f/(a440/16))
	}
	frqbins[0] = frqbins[1] - 1.5*nc

	binwidth := make([]float64, nfft)
	for k := 0; k < nfft-1; k++ {
		binwidth[k] = math.Max(frqbins[k+1]-frqbins[k], 1)
	}
	binwidth[nfft-1] = 1

	half := math.Round(nc / 2)
	wts := make([][]float64, nChroma)
	for c := range wts {
		wts[c] = make([]float64, nfft)
	}
	for k := 0; k < nfft; k++ {
		var norm float64
		for c := 0; c < nChroma; c++ {
			d := math.Mod(frqbins[k]-float64(c)+half+10*nc, nc)
			if d < 0 {
				d += nc
			}
			d -= half
			w := math.Exp(-0.5 * math.Pow(2*d/binwidth[k], 2))
			wts[c][k] = w
			norm += w * w
		}
		norm = math.Sqrt(norm)
		octW := 1.0
		if octWidth > 0 {
			octW = math.Exp(-0.5 * math.Pow((frqbins[k]/nc-ctrOctave)/octWidth, 2))
		}
		for c := 0; c < nChroma; c++ {
			if norm > 0 {
				wts[c][k] /= norm
			}
			wts[c][k] *= octW
		}
	}

	// Roll so that row 0 is C instead of A, and keep the rfft bins only.
	shift := 3 * (nChroma / 12)
	bins := nfft/2 + 1
	out := make([][]float64, nChroma)
	for c := 0; c < nChroma; c++ {
		out[c] = append([]float64(nil), wts[(c+shift)%nChroma][:bins]...)
	}
	return out
}

// chroma projects a power spectrogram onto the chroma bank and scales each
// frame so its largest bin is 1. Silent frames stay zero.
func chroma(power spectrogram, bank [][]float64) [][]float64 {
	out := applyBank(bank, power)
	for _, frame := range out {
		normalizePeak(frame)
	}
	return out
}

// normalizePeak scales v so its largest magnitude is 1, leaving ~zero
// vectors untouched.
func normalizePeak(v []float64) {
	var peak float64
	for _, x := range v {
		peak = math.Max(peak, math.Abs(x))
	}
	if peak < tiny32 {
		return
	}
	for i := range v {
		v[i] /= peak
	}
}

// tonnetzBasis is the 6×12 projection onto fifths, minor thirds and major
// thirds (sin/cos pairs).
func tonnetzBasis() [][]float64 {
	scale := []float64{7.0 / 6, 7.0 / 6, 3.0 / 2, 3.0 / 2, 2.0 / 3, 2.0 / 3}
	radius := []float64{1, 1, 1, 1, 0.5, 0.5}
	out := make([][]float64, 6)
	for r := range out {
		row := make([]float64, 12)
		for c := 0; c < 12; c++ {
			v := scale[r] * float64(c)
			if r%2 == 0 {
				v -= 0.5
			}
			row[c] = radius[r] * math.Cos(math.Pi*v)
		}
		out[r] = row
	}
	return out
}

// tonnetz maps per-frame chroma to tonal-centroid coordinates after L1
// normalising each frame.
func tonnetz(chromaFrames [][]float64, basis [][]float64) [][]float64 {
	out := make([][]float64, len(chromaFrames))
	for t, frame := range chromaFrames {
		var l1 float64
		for _, v := range frame {
			l1 += math.Abs(v)
		}
		if l1 < tiny32 {
			l1 = 1
		}
		row := make([]float64, len(basis))
		for r, b := range basis {
			var sum float64
			for c, w := range b {
				sum += w * frame[c] / l1
			}
			row[r] = sum
		}
		out[t] = row
	}
	return out
}
