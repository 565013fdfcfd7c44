package orchestrator

import (
	"errors"
	"testing"

	"github.com/crycare/cry-pipeline/logging"
	"github.com/crycare/cry-pipeline/models/modeltest"
)

func TestEnsembleClassify(t *testing.T) {
	rows := [][]float64{{0.25, 0.08}, {0, 0}, {0.3, 0.1}}
	for _, parallel := range []bool{false, true} {
		e := NewEnsemble(modeltest.Bundle(), parallel, logging.Discard())
		b, err := e.Classify(rows)
		if err != nil {
			t.Fatalf("Classify(parallel=%v): %v", parallel, err)
		}
		wantModels := []string{"RandomForest", "KNN", "XGBoost"}
		for i, m := range wantModels {
			if b.Models[i] != m {
				t.Fatalf("model %d: got %q want %q", i, b.Models[i], m)
			}
			want := []string{modeltest.Loud, modeltest.Quiet, modeltest.Loud}
			for j := range want {
				if b.Labels[i][j] != want[j] {
					t.Fatalf("%s row %d: got %q want %q", m, j, b.Labels[i][j], want[j])
				}
			}
		}
	}
}

func TestEnsembleErrors(t *testing.T) {
	e := NewEnsemble(modeltest.Bundle(), false, logging.Discard())
	if _, err := e.Classify(nil); !errors.Is(err, ErrNoPredictions) {
		t.Fatalf("empty rows: %v", err)
	}
	if _, err := e.Classify([][]float64{{1, 2, 3}}); err == nil {
		t.Fatal("expected width error")
	}

	b := modeltest.Bundle()
	b.Labels.Classes = b.Labels.Classes[:2]
	e = NewEnsemble(b, false, logging.Discard())
	if _, err := e.Classify([][]float64{{0, 0}}); err == nil {
		t.Fatal("expected unknown label code error")
	}
}
