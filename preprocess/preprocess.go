// Package preprocess turns per-segment feature vectors into the reduced
// matrix the classifiers read.
package preprocess

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/crycare/cry-pipeline/features"
	"github.com/crycare/cry-pipeline/models"
)

// Schema is the ordered column list the scaler was fit on. Absent fields are
// filled with Default.
type Schema struct {
	Fields  []string
	Default float64
}

// Reindex lays rows out as a dense matrix in schema order. Keys outside the
// schema are dropped.
func (s Schema) Reindex(rows []features.Vector) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		r := make([]float64, len(s.Fields))
		for j, name := range s.Fields {
			v, ok := row[name]
			if !ok {
				v = s.Default
			}
			r[j] = v
		}
		out[i] = r
	}
	return out
}

// SchemaMismatchError reports that the reindexed width disagrees with the
// frozen scaler.
type SchemaMismatchError struct {
	Got, Want int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feature schema mismatch: %d columns, scaler expects %d", e.Got, e.Want)
}

// Preprocessor applies reindexing, null filling, standardization and PCA
// projection with the bundle's frozen parameters.
type Preprocessor struct {
	schema Schema
	scaler *models.Scaler
	pca    *models.PCA
	log    logrus.FieldLogger
}

// New builds a preprocessor over b. The column schema is the scaler's
// recorded feature names, else the manifest's, else the extractor's own field
// list.
func New(b *models.Bundle, log logrus.FieldLogger) *Preprocessor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	fields := b.Schema()
	if fields == nil {
		fields = features.Fields()
	}
	return &Preprocessor{
		schema: Schema{Fields: fields},
		scaler: b.Scaler,
		pca:    b.PCA,
		log:    log,
	}
}

// Schema returns the column schema in use.
func (p *Preprocessor) Schema() Schema {
	return Schema{Fields: append([]string(nil), p.schema.Fields...), Default: p.schema.Default}
}

// Transform maps feature rows to reduced rows. The result has one row per
// input row and never contains NaN or Inf.
func (p *Preprocessor) Transform(rows []features.Vector) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if got, want := len(p.schema.Fields), p.scaler.NFeatures(); got != want {
		return nil, &SchemaMismatchError{Got: got, Want: want}
	}

	x := p.schema.Reindex(rows)
	filled := fillNonFinite(x)
	if filled > 0 {
		p.log.WithField("values", filled).Warn("replaced non-finite feature values with 0")
	}

	scaled, err := p.scaler.Transform(x)
	if err != nil {
		return nil, err
	}
	reduced, err := p.pca.Transform(scaled)
	if err != nil {
		return nil, err
	}
	fillNonFinite(reduced)

	p.log.WithFields(logrus.Fields{
		"rows":       len(reduced),
		"features":   len(p.schema.Fields),
		"components": p.pca.NComponents(),
	}).Debug("features preprocessed")
	return reduced, nil
}

// fillNonFinite zeroes NaN and ±Inf in place and returns how many it
// replaced.
func fillNonFinite(x [][]float64) int {
	n := 0
	for _, row := range x {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				row[j] = 0
				n++
			}
		}
	}
	return n
}
