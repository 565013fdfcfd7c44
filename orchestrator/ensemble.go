package orchestrator

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/crycare/cry-pipeline/models"
)

// Ensemble runs every classifier over the same reduced rows and decodes the
// codes to labels.
type Ensemble struct {
	classifiers []models.Classifier
	labels      *models.LabelEncoder
	parallel    bool
	log         logrus.FieldLogger
}

// NewEnsemble uses the bundle's classifiers in voting order. With parallel
// set, the classifiers run concurrently; output order is unaffected.
func NewEnsemble(b *models.Bundle, parallel bool, log logrus.FieldLogger) *Ensemble {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ensemble{
		classifiers: b.Classifiers(),
		labels:      b.Labels,
		parallel:    parallel,
		log:         log,
	}
}

// Classify labels every row with every classifier.
func (e *Ensemble) Classify(rows [][]float64) (PredictionBatch, error) {
	if len(rows) == 0 {
		return PredictionBatch{}, ErrNoPredictions
	}
	batch := PredictionBatch{
		Models: make([]string, len(e.classifiers)),
		Labels: make([][]string, len(e.classifiers)),
	}

	var g errgroup.Group
	if !e.parallel {
		g.SetLimit(1)
	}
	for i, c := range e.classifiers {
		batch.Models[i] = c.Name()
		g.Go(func() error {
			labels, err := e.run(c, rows)
			if err != nil {
				return err
			}
			batch.Labels[i] = labels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PredictionBatch{}, err
	}

	for i, name := range batch.Models {
		e.log.WithFields(logrus.Fields{
			"model":  name,
			"labels": batch.Labels[i],
		}).Debug("segment predictions")
	}
	return batch, nil
}

func (e *Ensemble) run(c models.Classifier, rows [][]float64) ([]string, error) {
	codes := make([]int, len(rows))
	for r, x := range rows {
		if len(x) != c.NInputs() {
			return nil, fmt.Errorf("%s: row %d has %d features, expected %d", c.Name(), r, len(x), c.NInputs())
		}
		code, err := c.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name(), err)
		}
		codes[r] = code
	}
	labels, err := e.labels.DecodeAll(codes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Name(), err)
	}
	return labels, nil
}
