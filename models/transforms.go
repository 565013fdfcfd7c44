package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Scaler is a frozen per-column standardization: (x - Mean) / Scale.
type Scaler struct {
	FeatureNames []string  `msgpack:"feature_names_in,omitempty" json:"feature_names_in,omitempty"`
	Mean         []float64 `msgpack:"mean" json:"mean"`
	Scale        []float64 `msgpack:"scale" json:"scale"`
}

// NFeatures is the column count the scaler was fit on.
func (s *Scaler) NFeatures() int { return len(s.Mean) }

func (s *Scaler) validate() error {
	if len(s.Mean) == 0 {
		return fmt.Errorf("scaler: no columns")
	}
	if len(s.Scale) != len(s.Mean) {
		return fmt.Errorf("scaler: %d means but %d scales", len(s.Mean), len(s.Scale))
	}
	if len(s.FeatureNames) != 0 && len(s.FeatureNames) != len(s.Mean) {
		return fmt.Errorf("scaler: %d feature names for %d columns", len(s.FeatureNames), len(s.Mean))
	}
	return nil
}

// Transform standardizes rows into a new matrix. A zero scale (constant
// column at fit time) divides by one.
func (s *Scaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("scaler: row %d has %d features, expected %d", i, len(row), len(s.Mean))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			scale := s.Scale[j]
			if scale == 0 {
				scale = 1
			}
			r[j] = (v - s.Mean[j]) / scale
		}
		out[i] = r
	}
	return out, nil
}

// PCA is a frozen linear projection: (x - Mean) · Componentsᵀ, optionally
// whitened by the explained variance.
type PCA struct {
	Mean              []float64   `msgpack:"mean" json:"mean"`
	Components        [][]float64 `msgpack:"components" json:"components"`
	ExplainedVariance []float64   `msgpack:"explained_variance,omitempty" json:"explained_variance,omitempty"`
	Whiten            bool        `msgpack:"whiten" json:"whiten"`
}

// NInputs is the expected input width.
func (p *PCA) NInputs() int { return len(p.Mean) }

// NComponents is the output width.
func (p *PCA) NComponents() int { return len(p.Components) }

func (p *PCA) validate() error {
	if len(p.Components) == 0 {
		return fmt.Errorf("pca: no components")
	}
	for i, c := range p.Components {
		if len(c) != len(p.Mean) {
			return fmt.Errorf("pca: component %d has %d weights, expected %d", i, len(c), len(p.Mean))
		}
	}
	if p.Whiten && len(p.ExplainedVariance) != len(p.Components) {
		return fmt.Errorf("pca: whitening needs %d explained variances, got %d", len(p.Components), len(p.ExplainedVariance))
	}
	return nil
}

// Transform projects rows onto the principal components. Inputs are copied;
// the frozen parameters are never written.
func (p *PCA) Transform(rows [][]float64) ([][]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	n, d, k := len(rows), len(p.Mean), len(p.Components)

	centered := make([]float64, 0, n*d)
	for i, row := range rows {
		if len(row) != d {
			return nil, fmt.Errorf("pca: row %d has %d features, expected %d", i, len(row), d)
		}
		for j, v := range row {
			centered = append(centered, v-p.Mean[j])
		}
	}
	weights := make([]float64, 0, k*d)
	for _, c := range p.Components {
		weights = append(weights, c...)
	}

	x := mat.NewDense(n, d, centered)
	w := mat.NewDense(k, d, weights)
	var y mat.Dense
	y.Mul(x, w.T())

	out := make([][]float64, n)
	for i := range out {
		r := mat.Row(nil, i, &y)
		if p.Whiten {
			for j := range r {
				r[j] /= math.Sqrt(p.ExplainedVariance[j])
			}
		}
		out[i] = r
	}
	return out, nil
}

// LabelEncoder maps integer class codes back to category names.
type LabelEncoder struct {
	Classes []string `msgpack:"classes" json:"classes"`
}

// Decode returns the name of code.
func (l *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(l.Classes) {
		return "", fmt.Errorf("label code %d outside [0, %d)", code, len(l.Classes))
	}
	return l.Classes[code], nil
}

// DecodeAll decodes every code, failing on the first unknown one.
func (l *LabelEncoder) DecodeAll(codes []int) ([]string, error) {
	out := make([]string, len(codes))
	for i, c := range codes {
		name, err := l.Decode(c)
		if err != nil {
			return nil, err
		}
		out[i] = name
	}
	return out, nil
}
