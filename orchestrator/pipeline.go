// Package orchestrator runs one audio file through loading, segmentation,
// feature extraction, preprocessing, the classifier ensemble and the vote.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/crycare/cry-pipeline/audio"
	cfg "github.com/crycare/cry-pipeline/config"
	"github.com/crycare/cry-pipeline/features"
	"github.com/crycare/cry-pipeline/metrics"
	"github.com/crycare/cry-pipeline/models"
	"github.com/crycare/cry-pipeline/preprocess"
)

// Pipeline is safe for concurrent use. The bundle it was built with is only
// ever read.
type Pipeline struct {
	cfg       *cfg.Root
	bundle    *models.Bundle
	loader    *audio.Loader
	extractor segmentExtractor
	prep      *preprocess.Preprocessor
	ensemble  *Ensemble
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

type segmentExtractor interface {
	Extract(samples []float64) (features.Vector, error)
}

type Option func(*Pipeline)

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline wires the stages around the frozen bundle b.
func NewPipeline(c *cfg.Root, b *models.Bundle, opts ...Option) (*Pipeline, error) {
	if c == nil {
		c = cfg.Default()
	}
	if b == nil {
		return nil, errors.New("model bundle is required")
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("model bundle: %w", err)
	}
	p := &Pipeline{cfg: c, bundle: b, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(p)
	}

	ex, err := features.NewExtractor(c.Audio.SampleRate, features.DefaultParams(), p.log)
	if err != nil {
		return nil, err
	}
	p.extractor = ex
	p.loader = audio.NewLoader(c.Audio.SampleRate, c.Audio.FFmpeg, p.log)
	p.prep = preprocess.New(b, p.log)
	p.ensemble = NewEnsemble(b, c.Features.Workers > 1, p.log)
	return p, nil
}

// Bundle returns the frozen model state.
func (p *Pipeline) Bundle() *models.Bundle { return p.bundle }

// run tracks one invocation's stage and timing.
type run struct {
	p     *Pipeline
	ctx   context.Context
	log   logrus.FieldLogger
	stage Stage
	mark  time.Time
}

func (r *run) advance(s Stage, fields logrus.Fields) {
	now := time.Now()
	r.p.metrics.RecordStage(r.ctx, s.String(), now.Sub(r.mark))
	r.mark = now
	r.stage = s
	r.log.WithFields(fields).WithField("stage", s.String()).Debug("stage complete")
}

func (r *run) fail(kind Kind, err error, format string, args ...any) Result {
	e := &Error{Kind: kind, Stage: r.stage, Msg: fmt.Sprintf(format, args...), Err: err}
	r.log.WithFields(logrus.Fields{
		"stage": r.stage.String(),
		"kind":  string(kind),
	}).WithError(err).Error(e.Msg)
	r.stage = StageError
	return Result{Err: e, Stage: StageError}
}

func (r *run) canceled() (Result, bool) {
	if err := r.ctx.Err(); err != nil {
		return r.fail(KindPrediction, err, "canceled"), true
	}
	return Result{}, false
}

// ProcessAndPredict classifies the audio file at path. It never panics on bad
// input; every failure is reported through Result.Err.
func (p *Pipeline) ProcessAndPredict(ctx context.Context, path string) Result {
	start := time.Now()
	r := &run{
		p:     p,
		ctx:   ctx,
		log:   p.log.WithField("file", filepath.Base(path)),
		stage: StageStart,
		mark:  start,
	}
	res := p.process(r, path)
	outcome := "ok"
	if res.Err != nil {
		outcome = string(res.Err.Kind)
	}
	p.metrics.RecordPrediction(ctx, outcome, time.Since(start))
	return res
}

func (p *Pipeline) process(r *run, path string) Result {
	if res, stop := r.canceled(); stop {
		return res
	}

	sig, err := p.loader.Load(r.ctx, path)
	if err != nil {
		return r.fail(KindDecode, err, "decode failed: %v", errors.Unwrap(err))
	}
	r.advance(StageLoaded, logrus.Fields{"duration_s": fmt.Sprintf("%.2f", sig.Seconds())})

	if need := p.cfg.Audio.MinDuration; need > 0 && sig.Seconds() < need {
		return r.fail(KindTooShort, nil, "audio too short: %.2fs, need at least %.2fs", sig.Seconds(), need)
	}

	segs := audio.Split(sig, p.cfg.Audio.SegmentSeconds)
	if len(segs) == 0 {
		return r.fail(KindSegmentation, nil, "no valid audio")
	}
	r.advance(StageSegmented, logrus.Fields{"segments": len(segs)})
	if res, stop := r.canceled(); stop {
		return res
	}

	vectors := p.extract(r, segs)
	if res, stop := r.canceled(); stop {
		return res
	}
	if len(vectors) == 0 {
		return r.fail(KindNoFeatures, nil, "no features extracted")
	}
	r.advance(StageExtracted, logrus.Fields{"segments_ok": len(vectors), "segments_failed": len(segs) - len(vectors)})

	rows, err := p.prep.Transform(vectors)
	if err != nil {
		var mismatch *preprocess.SchemaMismatchError
		if errors.As(err, &mismatch) {
			return r.fail(KindSchemaMismatch, err, "%v", err)
		}
		return r.fail(KindPrediction, err, "%v", err)
	}
	r.advance(StagePreprocessed, logrus.Fields{"rows": len(rows)})

	batch, err := p.ensemble.Classify(rows)
	if err != nil {
		if errors.Is(err, ErrNoPredictions) {
			return r.fail(KindEmptyBatch, err, "%v", err)
		}
		return r.fail(KindPrediction, err, "%v", err)
	}
	r.advance(StageClassified, nil)

	agg, err := Aggregate(batch)
	if err != nil {
		if errors.Is(err, ErrNoPredictions) {
			return r.fail(KindEmptyBatch, err, "%v", err)
		}
		return r.fail(KindPrediction, err, "%v", err)
	}
	r.advance(StageAggregated, logrus.Fields{"overall": agg.Overall})

	pred := &Prediction{
		RandomForest:      agg.ByModel[p.bundle.Forest.Name()],
		KNN:               agg.ByModel[p.bundle.KNN.Name()],
		XGBoost:           agg.ByModel[p.bundle.Boost.Name()],
		Overall:           agg.Overall,
		SegmentsProcessed: agg.Segments,
	}
	r.stage = StageDone
	r.log.WithFields(logrus.Fields{
		"random_forest": pred.RandomForest,
		"knn":           pred.KNN,
		"xgboost":       pred.XGBoost,
		"overall":       pred.Overall,
		"segments":      pred.SegmentsProcessed,
	}).Info("prediction complete")
	return Result{Prediction: pred, Stage: StageDone}
}

// extract computes features for every segment on up to features.workers
// goroutines. Failed segments are logged and skipped; survivors keep segment
// order.
func (p *Pipeline) extract(r *run, segs []audio.Segment) []features.Vector {
	out := make([]features.Vector, len(segs))
	var g errgroup.Group
	g.SetLimit(max(1, p.cfg.Features.Workers))
	for i, s := range segs {
		g.Go(func() error {
			if r.ctx.Err() != nil {
				return nil
			}
			v, err := p.extractor.Extract(s.Samples)
			if err != nil {
				r.log.WithFields(logrus.Fields{"segment": s.Index}).WithError(err).Warn("skipping segment")
				return nil
			}
			out[i] = v
			return nil
		})
	}
	_ = g.Wait()

	vectors := make([]features.Vector, 0, len(out))
	for _, v := range out {
		if v != nil {
			vectors = append(vectors, v)
		}
	}
	p.metrics.RecordSegments(r.ctx, len(vectors), len(segs)-len(vectors))
	return vectors
}
