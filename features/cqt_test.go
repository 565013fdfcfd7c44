package features

import (
	"math"
	"testing"

	"github.com/crycare/cry-pipeline/audio/audiotest"
)

func TestConstantQPeaksAtTone(t *testing.T) {
	p := DefaultParams()
	bpo := p.CQTBinsPerOctave
	cq := constantQ(audiotest.Tone(16000, 0.5, 440, 0.5), 16000, p.Hop, p.CQTFMin, p.CQTOctaves*bpo, bpo)
	frame := cq[len(cq)/2]
	best := 0
	for k, v := range frame {
		if v > frame[best] {
			best = k
		}
	}
	// A4 sits 45 semitones above C1.
	if best != 45*bpo/12 {
		t.Fatalf("peak bin: got %d want %d", best, 45*bpo/12)
	}
}

func TestFoldChromaCentresClasses(t *testing.T) {
	row := make([]float64, 36)
	for k := range row {
		row[k] = float64(k + 1)
	}
	c := foldChroma([][]float64{row}, 36, 12, 32.70319566257483)[0]
	// C takes bins 35, 0 and 1; C# takes 2, 3 and 4.
	if c[0] != 36+1+2 {
		t.Fatalf("C: got %v", c[0])
	}
	if c[1] != 3+4+5 {
		t.Fatalf("C#: got %v", c[1])
	}
	var sum float64
	for _, v := range c {
		sum += v
	}
	if sum != 36*37/2 {
		t.Fatalf("bins lost while folding: %v", sum)
	}
}

func TestCQTChromaOfToneIsA(t *testing.T) {
	p := DefaultParams()
	ch := cqtChroma(audiotest.Tone(16000, 0.5, 440, 0.5), 16000, p, 0)
	frame := ch[len(ch)/2]
	if frame[9] != 1 {
		t.Fatalf("A should be the peak class: %v", frame)
	}
	for c, v := range frame {
		if c != 9 && v > 0.05 {
			t.Fatalf("class %d leaks %v", c, v)
		}
	}
}

func TestISTFTInvertsSTFT(t *testing.T) {
	y := audiotest.Tone(16000, 0.3, 523, 0.4)
	for i := range y {
		y[i] += 0.1 * math.Sin(float64(i)*0.37)
	}
	got := istft(stftComplex(y, 2048, 512), 2048, 512, len(y))
	if len(got) != len(y) {
		t.Fatalf("length: got %d want %d", len(got), len(y))
	}
	for i := range y {
		if math.Abs(got[i]-y[i]) > 1e-9 {
			t.Fatalf("sample %d: got %v want %v", i, got[i], y[i])
		}
	}
}

func TestValidateRejectsConstantQAboveNyquist(t *testing.T) {
	p := DefaultParams()
	p.ContrastBands = 4
	// Seven octaves from C1 top out above 4 kHz, past nyquist at 8 kHz sampling.
	if err := p.validate(8000); err == nil {
		t.Fatal("expected error for constant-Q bank above nyquist")
	}
	p.CQTOctaves = 6
	if err := p.validate(8000); err != nil {
		t.Fatalf("six octaves fit: %v", err)
	}
}
