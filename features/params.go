// Package features computes the per-segment acoustic descriptor fed to the
// classifiers: cepstral, spectral, chroma, contrast and tonal-centroid means
// over short-time analysis frames.
//
// The analysis parameters are part of the trained models' contract. Changing
// any of them shifts the feature distribution the frozen scaler, PCA and
// classifiers were fit on.
package features

import (
	"fmt"
	"strconv"
)

// Params holds the frozen short-time analysis settings.
type Params struct {
	NFFT      int
	Hop       int
	NMels     int
	NMFCC     int // cepstral coefficients kept
	TopDB     float64
	AMin      float64
	NChroma   int
	CtrOctave float64
	OctWidth  float64

	// Tuning is estimated per clip from spectral peaks in [PitchFMin,
	// PitchFMax) above PitchThreshold of each frame's maximum, at
	// TuningResolution of a bin.
	PitchFMin        float64
	PitchFMax        float64
	PitchThreshold   float64
	TuningResolution float64

	// Constant-Q analysis behind the tonal centroids.
	CQTFMin          float64
	CQTBinsPerOctave int
	CQTOctaves       int

	ContrastBands    int
	ContrastFMin     float64
	ContrastQuantile float64

	HPSSKernel int
	HPSSPower  float64
	HPSSMargin float64

	ZCRThreshold float64
}

// DefaultParams returns the settings the shipped models were trained with.
func DefaultParams() Params {
	return Params{
		NFFT:             2048,
		Hop:              512,
		NMels:            128,
		NMFCC:            26,
		TopDB:            80,
		AMin:             1e-10,
		NChroma:          12,
		CtrOctave:        5.0,
		OctWidth:         2.0,
		PitchFMin:        150,
		PitchFMax:        4000,
		PitchThreshold:   0.1,
		TuningResolution: 0.01,
		CQTFMin:          32.70319566257483, // C1
		CQTBinsPerOctave: 36,
		CQTOctaves:       7,
		ContrastBands:    6,
		ContrastFMin:     200,
		ContrastQuantile: 0.02,
		HPSSKernel:       31,
		HPSSPower:        2.0,
		HPSSMargin:       1.0,
		ZCRThreshold:     1e-10,
	}
}

func (p Params) validate(sampleRate int) error {
	switch {
	case sampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	case p.NFFT < 2 || p.NFFT%2 != 0:
		return fmt.Errorf("n_fft must be a positive even number, got %d", p.NFFT)
	case p.Hop <= 0:
		return fmt.Errorf("hop must be positive, got %d", p.Hop)
	case p.NMels <= 0 || p.NMFCC <= 0 || p.NMFCC > p.NMels:
		return fmt.Errorf("invalid mel/mfcc sizes %d/%d", p.NMels, p.NMFCC)
	case p.NChroma != 12:
		return fmt.Errorf("tonnetz needs 12 chroma bins, got %d", p.NChroma)
	case p.ContrastBands <= 0 || p.ContrastFMin <= 0:
		return fmt.Errorf("invalid spectral contrast bands %d from %g Hz", p.ContrastBands, p.ContrastFMin)
	case p.ContrastQuantile <= 0 || p.ContrastQuantile >= 1:
		return fmt.Errorf("contrast quantile must be in (0, 1), got %g", p.ContrastQuantile)
	case p.HPSSKernel <= 0 || p.HPSSKernel%2 == 0:
		return fmt.Errorf("hpss kernel must be odd, got %d", p.HPSSKernel)
	case p.TuningResolution <= 0 || p.TuningResolution > 1:
		return fmt.Errorf("tuning resolution must be in (0, 1], got %g", p.TuningResolution)
	case p.PitchFMin <= 0 || p.PitchFMax <= p.PitchFMin:
		return fmt.Errorf("invalid pitch range %g-%g Hz", p.PitchFMin, p.PitchFMax)
	case p.CQTFMin <= 0 || p.CQTOctaves <= 0 || p.CQTBinsPerOctave <= 0 || p.CQTBinsPerOctave%p.NChroma != 0:
		return fmt.Errorf("invalid constant-Q bank: %d octaves of %d bins from %g Hz", p.CQTOctaves, p.CQTBinsPerOctave, p.CQTFMin)
	}
	nyquist := float64(sampleRate) / 2
	top := p.ContrastFMin
	for i := 1; i < p.ContrastBands; i++ {
		top *= 2
	}
	if top >= nyquist {
		return fmt.Errorf("contrast bands reach %g Hz, above nyquist %g Hz", top, nyquist)
	}
	if cut := cqtTopCutoff(p); cut > nyquist {
		return fmt.Errorf("constant-Q bank reaches %g Hz, above nyquist %g Hz", cut, nyquist)
	}
	return nil
}

// Field names, in the order the models were trained with.
const (
	ZCR               = "zcr"
	SpectralCentroid  = "spectral_centroid"
	SpectralBandwidth = "spectral_bandwidth"
	RMS               = "rms"
)

func MFCCField(i int) string     { return "mfcc_" + strconv.Itoa(i+1) }
func ChromaField(i int) string   { return "chroma_" + strconv.Itoa(i+1) }
func ContrastField(i int) string { return "spectral_contrast_" + strconv.Itoa(i+1) }
func TonnetzField(i int) string  { return "tonnetz_" + strconv.Itoa(i+1) }

// Fields lists every feature the extractor produces for p, in schema order.
func (p Params) Fields() []string {
	out := make([]string, 0, p.NMFCC+4+p.NChroma+p.ContrastBands+1+6)
	for i := 0; i < p.NMFCC; i++ {
		out = append(out, MFCCField(i))
	}
	out = append(out, ZCR, SpectralCentroid, SpectralBandwidth, RMS)
	for i := 0; i < p.NChroma; i++ {
		out = append(out, ChromaField(i))
	}
	for i := 0; i < p.ContrastBands+1; i++ {
		out = append(out, ContrastField(i))
	}
	for i := 0; i < 6; i++ {
		out = append(out, TonnetzField(i))
	}
	return out
}

// Fields is the default 55-field schema.
func Fields() []string { return DefaultParams().Fields() }
