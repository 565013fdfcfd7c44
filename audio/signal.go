// Package audio turns an input file into fixed-length mono sample windows at
// the analysis sample rate.
package audio

import (
	"fmt"
	"time"
)

// Signal is decoded mono audio. Samples are normalised to [-1, 1].
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Duration reports the signal length.
func (s *Signal) Duration() time.Duration {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// Seconds reports the signal length in seconds.
func (s *Signal) Seconds() float64 {
	if s == nil || s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// DecodeError reports that a file could not be opened, decoded or resampled.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
