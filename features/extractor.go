package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Vector maps field names to values for one segment.
type Vector map[string]float64

// ErrEmptySegment is returned for a segment without samples.
var ErrEmptySegment = errors.New("empty segment")

// Extractor computes feature vectors for segments at one sample rate. Its
// filter banks are built once and only read afterwards, so a single
// Extractor may serve concurrent calls.
type Extractor struct {
	params     Params
	sampleRate int
	fields     []string

	freqs   []float64
	mel     [][]float64
	dct     [][]float64
	chroma  [][]float64 // at A440; rebuilt per segment for other tunings
	tonnetz [][]float64
	bands   []contrastBand

	log logrus.FieldLogger
}

// NewExtractor validates p for sampleRate and precomputes the filter banks.
func NewExtractor(sampleRate int, p Params, log logrus.FieldLogger) (*Extractor, error) {
	if err := p.validate(sampleRate); err != nil {
		return nil, fmt.Errorf("feature params: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	freqs := fftFrequencies(sampleRate, p.NFFT)
	return &Extractor{
		params:     p,
		sampleRate: sampleRate,
		fields:     p.Fields(),
		freqs:      freqs,
		mel:        melBank(sampleRate, p.NFFT, p.NMels, 0, float64(sampleRate)/2),
		dct:        dctMatrix(p.NMFCC, p.NMels),
		chroma:     chromaBank(sampleRate, p.NFFT, p.NChroma, 0, p.CtrOctave, p.OctWidth),
		tonnetz:    tonnetzBasis(),
		bands:      contrastBands(freqs, p.ContrastBands, p.ContrastFMin, p.ContrastQuantile),
		log:        log,
	}, nil
}

// SampleRate is the rate segments must be sampled at.
func (e *Extractor) SampleRate() int { return e.sampleRate }

// Fields returns a copy of the produced field names in schema order.
func (e *Extractor) Fields() []string { return append([]string(nil), e.fields...) }

// Extract computes the feature vector of one segment. The error is scoped to
// this segment; callers are expected to skip it and carry on.
func (e *Extractor) Extract(samples []float64) (Vector, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySegment
	}
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite sample at %d", i)
		}
	}
	p := e.params

	spec := stftComplex(samples, p.NFFT, p.Hop)
	mag := spec.magnitude()
	pow := mag.power()

	out := make(Vector, len(e.fields))

	cep := meanRows(mfcc(pow, e.mel, e.dct, p.AMin, p.TopDB), p.NMFCC)
	for i, v := range cep {
		out[MFCCField(i)] = v
	}

	out[ZCR] = mean(zeroCrossingRate(samples, p.NFFT, p.Hop, p.ZCRThreshold))
	centroid, bandwidth := centroidBandwidth(mag, e.freqs)
	out[SpectralCentroid] = mean(centroid)
	out[SpectralBandwidth] = mean(bandwidth)
	out[RMS] = mean(rmsEnergy(samples, p.NFFT, p.Hop))

	tuning := estimateTuning(pow, e.sampleRate, p.NFFT, p.NChroma, p)
	bank := e.chroma
	if tuning != 0 {
		bank = chromaBank(e.sampleRate, p.NFFT, p.NChroma, tuning, p.CtrOctave, p.OctWidth)
	}
	chr := meanRows(chroma(pow, bank), p.NChroma)
	for i, v := range chr {
		out[ChromaField(i)] = v
	}

	con := meanRows(spectralContrast(mag, e.bands, p.AMin, p.TopDB), len(e.bands))
	for i, v := range con {
		out[ContrastField(i)] = v
	}

	// Tonal centroids come from the constant-Q chroma of the resynthesised
	// harmonic component.
	mask := harmonicMask(mag, p.HPSSKernel, p.HPSSPower, p.HPSSMargin)
	harmonic := istft(spec.masked(mask), p.NFFT, p.Hop, len(samples))
	harmonicTuning := estimateTuning(stft(harmonic, p.NFFT, p.Hop), e.sampleRate, p.NFFT, p.CQTBinsPerOctave, p)
	ton := meanRows(tonnetz(cqtChroma(harmonic, e.sampleRate, p, harmonicTuning), e.tonnetz), len(e.tonnetz))
	for i, v := range ton {
		out[TonnetzField(i)] = v
	}

	e.log.WithFields(logrus.Fields{
		"samples":  len(samples),
		"tuning":   tuning,
		"rms":      fmt.Sprintf("%.4f", out[RMS]),
		"zcr":      fmt.Sprintf("%.4f", out[ZCR]),
		"centroid": fmt.Sprintf("%.1f", out[SpectralCentroid]),
		"mfcc_1":   fmt.Sprintf("%.2f", out[MFCCField(0)]),
		"mfcc_2":   fmt.Sprintf("%.2f", out[MFCCField(1)]),
	}).Debug("segment features")
	return out, nil
}
