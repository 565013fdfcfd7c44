package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/crycare/cry-pipeline/audio/audiotest"
	"github.com/crycare/cry-pipeline/config"
	"github.com/crycare/cry-pipeline/features"
	"github.com/crycare/cry-pipeline/logging"
	"github.com/crycare/cry-pipeline/models"
	"github.com/crycare/cry-pipeline/models/modeltest"
)

const rate = 16000

func testConfig() *config.Root {
	c := config.Default()
	c.Audio.FFmpeg = ""
	return c
}

func newTestPipeline(t *testing.T, c *config.Root, b *models.Bundle) *Pipeline {
	t.Helper()
	if c == nil {
		c = testConfig()
	}
	if b == nil {
		b = modeltest.Bundle()
	}
	p, err := NewPipeline(c, b, WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestFourteenSecondsTwoSegmentsTie(t *testing.T) {
	// Seven seconds of crying then seven of silence: every model sees one
	// loud and one quiet segment and the tie goes to the first label.
	samples := concat(audiotest.Cry(rate, 7), make([]float64, 7*rate))
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, samples)

	res := newTestPipeline(t, nil, nil).ProcessAndPredict(context.Background(), path)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	want := Prediction{
		RandomForest:      modeltest.Loud,
		KNN:               modeltest.Loud,
		XGBoost:           modeltest.Loud,
		Overall:           modeltest.Loud,
		SegmentsProcessed: 2,
	}
	if *res.Prediction != want {
		t.Fatalf("got %+v want %+v", *res.Prediction, want)
	}
	if res.Stage != StageDone {
		t.Fatalf("stage: got %s", res.Stage)
	}
}

func TestSilenceFirstFlipsTie(t *testing.T) {
	samples := concat(make([]float64, 7*rate), audiotest.Cry(rate, 7))
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, samples)

	res := newTestPipeline(t, nil, nil).ProcessAndPredict(context.Background(), path)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Prediction.Overall != modeltest.Quiet || res.Prediction.KNN != modeltest.Quiet {
		t.Fatalf("got %+v", *res.Prediction)
	}
}

func TestTenSecondsPadsSecondSegment(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 10))
	res := newTestPipeline(t, nil, nil).ProcessAndPredict(context.Background(), path)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Prediction.SegmentsProcessed != 2 {
		t.Fatalf("segments: got %d want 2", res.Prediction.SegmentsProcessed)
	}
	if res.Prediction.Overall != modeltest.Loud {
		t.Fatalf("overall: got %q", res.Prediction.Overall)
	}
}

func TestDeterministic(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, concat(audiotest.Cry(rate, 8), make([]float64, 6*rate)))
	p := newTestPipeline(t, nil, nil)
	first := p.ProcessAndPredict(context.Background(), path)
	for i := 0; i < 3; i++ {
		again := p.ProcessAndPredict(context.Background(), path)
		if !again.OK() || *again.Prediction != *first.Prediction {
			t.Fatalf("run %d differs: %+v vs %+v", i, again.Prediction, first.Prediction)
		}
	}
}

func TestConcurrentRunsShareBundle(t *testing.T) {
	c := testConfig()
	c.Features.Workers = 4
	b := modeltest.Bundle()
	before, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	p := newTestPipeline(t, c, b)
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 15))

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.ProcessAndPredict(context.Background(), path)
		}()
	}
	wg.Wait()
	for i, r := range results {
		if !r.OK() {
			t.Fatalf("run %d failed: %v", i, r.Err)
		}
		if r.Prediction.SegmentsProcessed != 3 || r.Prediction.Overall != modeltest.Loud {
			t.Fatalf("run %d: %+v", i, *r.Prediction)
		}
	}

	after, _ := b.Snapshot()
	if !bytes.Equal(before, after) {
		t.Fatal("model bundle changed while predicting")
	}
}

func TestDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := newTestPipeline(t, nil, nil).ProcessAndPredict(context.Background(), path)
	if res.OK() || res.Err.Kind != KindDecode {
		t.Fatalf("expected decode error, got %+v", res)
	}
	if !strings.HasPrefix(res.Err.Error(), "decode failed") {
		t.Fatalf("message: %q", res.Err.Error())
	}
	if res.Stage != StageError || res.Err.Stage != StageStart {
		t.Fatalf("stages: result %s error %s", res.Stage, res.Err.Stage)
	}
}

func TestMissingFile(t *testing.T) {
	res := newTestPipeline(t, nil, nil).ProcessAndPredict(context.Background(), filepath.Join(t.TempDir(), "gone.wav"))
	if res.OK() || res.Err.Kind != KindDecode {
		t.Fatalf("expected decode error, got %+v", res)
	}
}

func TestTooShort(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 0.5))

	res := newTestPipeline(t, nil, nil).ProcessAndPredict(context.Background(), path)
	if res.OK() || res.Err.Kind != KindTooShort {
		t.Fatalf("expected too_short, got %+v", res)
	}
	if !res.Err.Kind.ClientError() {
		t.Fatal("too_short should be a client error")
	}

	c := testConfig()
	c.Audio.MinDuration = 0
	res = newTestPipeline(t, c, nil).ProcessAndPredict(context.Background(), path)
	if !res.OK() {
		t.Fatalf("with the check disabled: %v", res.Err)
	}
	if res.Prediction.SegmentsProcessed != 1 {
		t.Fatalf("segments: got %d want 1", res.Prediction.SegmentsProcessed)
	}
}

func TestEmptyAudioIsNoValidAudio(t *testing.T) {
	c := testConfig()
	c.Audio.MinDuration = 0
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, nil)
	res := newTestPipeline(t, c, nil).ProcessAndPredict(context.Background(), path)
	if res.OK() {
		t.Fatal("expected failure for empty audio")
	}
	if res.Err.Kind != KindSegmentation || res.Err.Error() != "no valid audio" {
		t.Fatalf("expected segmentation/no valid audio, got %s/%q", res.Err.Kind, res.Err.Error())
	}
}

type failingExtractor struct {
	mu    sync.Mutex
	calls int
	// ok lists the call numbers that succeed.
	ok map[int]bool
}

func (f *failingExtractor) Extract(samples []float64) (features.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.ok[f.calls] {
		v := features.Vector{features.RMS: 0.3, features.ZCR: 0.1}
		return v, nil
	}
	return nil, errors.New("boom")
}

func TestAllSegmentsFail(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 14))
	p := newTestPipeline(t, nil, nil)
	p.extractor = &failingExtractor{}

	res := p.ProcessAndPredict(context.Background(), path)
	if res.OK() || res.Err.Kind != KindNoFeatures {
		t.Fatalf("expected no_features, got %+v", res)
	}
	if res.Err.Error() != "no features extracted" {
		t.Fatalf("message: %q", res.Err.Error())
	}
}

func TestFailedSegmentsAreSkipped(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 21))
	p := newTestPipeline(t, nil, nil)
	p.extractor = &failingExtractor{ok: map[int]bool{2: true}}

	res := p.ProcessAndPredict(context.Background(), path)
	if !res.OK() {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Prediction.SegmentsProcessed != 1 {
		t.Fatalf("segments: got %d want 1", res.Prediction.SegmentsProcessed)
	}
}

func TestCanceledContext(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := newTestPipeline(t, nil, nil).ProcessAndPredict(ctx, path)
	if res.OK() || res.Err.Kind != KindPrediction || res.Err.Error() != "canceled" {
		t.Fatalf("expected canceled, got %+v", res)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatal("error should wrap context.Canceled")
	}
}

// cancelingExtractor cancels the run from inside the extraction stage.
type cancelingExtractor struct {
	cancel context.CancelFunc
}

func (c cancelingExtractor) Extract([]float64) (features.Vector, error) {
	c.cancel()
	return nil, errors.New("interrupted")
}

func TestCanceledDuringExtraction(t *testing.T) {
	path := audiotest.WriteWAV(t, "clip.wav", rate, 1, audiotest.Cry(rate, 14))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newTestPipeline(t, nil, nil)
	p.extractor = cancelingExtractor{cancel: cancel}

	res := p.ProcessAndPredict(ctx, path)
	if res.OK() || res.Err.Kind != KindPrediction || res.Err.Error() != "canceled" {
		t.Fatalf("expected canceled, got %+v", res.Err)
	}
	if res.Err.Stage != StageSegmented {
		t.Fatalf("stage: got %s", res.Err.Stage)
	}
}

func TestNewPipelineRejectsBadBundle(t *testing.T) {
	if _, err := NewPipeline(testConfig(), nil); err == nil {
		t.Fatal("expected error for nil bundle")
	}
	b := modeltest.Bundle()
	b.PCA.Components = nil
	if _, err := NewPipeline(testConfig(), b); err == nil {
		t.Fatal("expected error for invalid bundle")
	}
}

func TestResultJSON(t *testing.T) {
	ok := Result{Prediction: &Prediction{
		RandomForest: "hungry", KNN: "tired", XGBoost: "hungry", Overall: "hungry", SegmentsProcessed: 2,
	}}
	data, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"RandomForest":"hungry","KNN":"tired","XGBoost":"hungry","Overall":"hungry","segments_processed":2}`
	if string(data) != want {
		t.Fatalf("success json:\n got %s\nwant %s", data, want)
	}

	bad := Result{Err: &Error{Kind: KindNoFeatures, Msg: "no features extracted"}}
	data, _ = json.Marshal(bad)
	if string(data) != `{"error":"no features extracted"}` {
		t.Fatalf("error json: %s", data)
	}
}

func TestStageNames(t *testing.T) {
	if StageClassified.String() != "classified" || Stage(99).String() != "unknown" {
		t.Fatal("stage names")
	}
}
