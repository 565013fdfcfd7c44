// Package modeltest builds a tiny, fully valid model bundle for tests.
//
// Every classifier in the bundle reads two reduced columns, the segment's rms
// and zcr, and votes Loud for rms above Threshold and Quiet otherwise.
package modeltest

import (
	"testing"

	"github.com/crycare/cry-pipeline/features"
	"github.com/crycare/cry-pipeline/models"
)

const (
	Quiet     = "tired"
	Loud      = "hungry"
	Threshold = 0.05
)

// Classes is the label table; code 0 is never predicted.
var Classes = []string{"belly_pain", Loud, Quiet}

const (
	loudCode  = 1
	quietCode = 2
)

// Bundle returns a fresh bundle over the full feature schema.
func Bundle() *models.Bundle {
	fields := features.Fields()
	idx := map[string]int{}
	for i, f := range fields {
		idx[f] = i
	}

	mean := make([]float64, len(fields))
	scale := make([]float64, len(fields))
	for i := range scale {
		scale[i] = 1
	}
	rms := make([]float64, len(fields))
	rms[idx[features.RMS]] = 1
	zcr := make([]float64, len(fields))
	zcr[idx[features.ZCR]] = 1

	split := models.Tree{Nodes: []models.TreeNode{
		{Left: 1, Right: 2, Feature: 0, Threshold: Threshold},
		{Left: -1, Right: -1, Value: []float64{0, 0, 3}},
		{Left: -1, Right: -1, Value: []float64{0, 5, 1}},
	}}
	stump := func(yes, no float64) []models.BoostNode {
		return []models.BoostNode{
			{Feature: 0, Threshold: Threshold, Yes: 1, No: 2, Missing: 1},
			{Leaf: true, Value: yes},
			{Leaf: true, Value: no},
		}
	}

	return &models.Bundle{
		Manifest: models.Manifest{
			Version:   "test-1",
			Artifacts: models.DefaultManifest().Artifacts,
		},
		Scaler: &models.Scaler{FeatureNames: fields, Mean: mean, Scale: scale},
		PCA: &models.PCA{
			Mean:       make([]float64, len(fields)),
			Components: [][]float64{rms, zcr},
		},
		Forest: &models.RandomForest{
			Classes:  []int{0, 1, 2},
			Features: 2,
			Trees:    []models.Tree{split, split},
		},
		KNN: &models.KNN{
			K:       1,
			Weights: "uniform",
			P:       2,
			X:       [][]float64{{0, 0}, {0.25, 0.08}},
			Y:       []int{quietCode, loudCode},
		},
		Boost: &models.GradientBoosting{
			Objective: models.ObjectiveSoftprob,
			NumClass:  3,
			BaseScore: 0.5,
			Features:  2,
			Trees: []models.BoostTree{
				{Class: 0, Nodes: []models.BoostNode{{Leaf: true, Value: -1}}},
				{Class: loudCode, Nodes: stump(-1, 1)},
				{Class: quietCode, Nodes: stump(1, -1)},
			},
		},
		Labels: &models.LabelEncoder{Classes: append([]string(nil), Classes...)},
	}
}

// Dir saves Bundle into a temp directory and returns its path.
func Dir(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	if err := Bundle().Save(dir); err != nil {
		t.Fatalf("save bundle: %v", err)
	}
	return dir
}
