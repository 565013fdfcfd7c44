package audio

import "math"

// Segment is one fixed-length analysis window. Valid counts the samples taken
// from the source; the rest, if any, are zero padding.
type Segment struct {
	Index   int
	Samples []float64
	Valid   int
}

// Padded reports whether the window was zero-filled to reach full length.
func (s Segment) Padded() bool { return s.Valid < len(s.Samples) }

// SegmentLength returns floor(sampleRate × seconds), or 0 when either input
// is not positive.
func SegmentLength(sampleRate int, seconds float64) int {
	if sampleRate <= 0 || seconds <= 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	return int(math.Floor(float64(sampleRate) * seconds))
}

// Split cuts sig into non-overlapping windows of SegmentLength samples. A
// trailing remainder becomes one extra window padded with zeros on the right.
// The returned windows never alias sig.Samples.
func Split(sig *Signal, seconds float64) []Segment {
	if sig == nil {
		return nil
	}
	size := SegmentLength(sig.SampleRate, seconds)
	if size == 0 {
		return nil
	}
	total := len(sig.Samples)
	full := total / size
	rem := total % size

	count := full
	if rem > 0 {
		count++
	}
	out := make([]Segment, 0, count)
	for i := 0; i < full; i++ {
		buf := make([]float64, size)
		copy(buf, sig.Samples[i*size:(i+1)*size])
		out = append(out, Segment{Index: i, Samples: buf, Valid: size})
	}
	if rem > 0 {
		buf := make([]float64, size)
		copy(buf, sig.Samples[full*size:])
		out = append(out, Segment{Index: full, Samples: buf, Valid: rem})
	}
	return out
}
