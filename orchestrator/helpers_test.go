package orchestrator

import (
	"errors"
	"testing"
)

func TestMajority(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   string
	}{
		{"clear winner", []string{"A", "A", "B"}, "A"},
		{"tie goes to first seen", []string{"A", "B"}, "A"},
		{"tie order matters", []string{"B", "A"}, "B"},
		{"late majority", []string{"B", "A", "A"}, "A"},
		{"three way tie", []string{"C", "B", "A", "A", "B", "C"}, "C"},
		{"single", []string{"tired"}, "tired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Majority(tt.labels)
			if err != nil {
				t.Fatalf("Majority: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
	if _, err := Majority(nil); !errors.Is(err, ErrNoPredictions) {
		t.Fatalf("empty: expected ErrNoPredictions, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	b := PredictionBatch{
		Models: []string{"RandomForest", "KNN", "XGBoost"},
		Labels: [][]string{
			{"A", "B"},
			{"B", "B"},
			{"A", "A"},
		},
	}
	res, err := Aggregate(b)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := map[string]string{"RandomForest": "A", "KNN": "B", "XGBoost": "A"}
	for m, l := range want {
		if res.ByModel[m] != l {
			t.Fatalf("%s: got %q want %q", m, res.ByModel[m], l)
		}
	}
	// A,B,B,B,A,A: three each, A seen first.
	if res.Overall != "A" {
		t.Fatalf("overall: got %q want A", res.Overall)
	}
	if res.Segments != 2 {
		t.Fatalf("segments: got %d", res.Segments)
	}
}

func TestAggregateOverallUsesAllLabels(t *testing.T) {
	// Two of three models pick B, but the pooled vote is A.
	b := PredictionBatch{
		Models: []string{"m1", "m2", "m3"},
		Labels: [][]string{
			{"A", "B", "B"},
			{"A", "A", "A"},
			{"B", "B", "A"},
		},
	}
	res, err := Aggregate(b)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if res.ByModel["m2"] != "A" || res.ByModel["m1"] != "B" {
		t.Fatalf("by model: %v", res.ByModel)
	}
	if res.Overall != "A" {
		t.Fatalf("overall: got %q want A", res.Overall)
	}
}

func TestAggregateRejectsBadBatches(t *testing.T) {
	if _, err := Aggregate(PredictionBatch{}); !errors.Is(err, ErrNoPredictions) {
		t.Fatalf("empty batch: %v", err)
	}
	empty := PredictionBatch{Models: []string{"a"}, Labels: [][]string{{}}}
	if _, err := Aggregate(empty); !errors.Is(err, ErrNoPredictions) {
		t.Fatalf("zero segments: %v", err)
	}
	ragged := PredictionBatch{Models: []string{"a", "b"}, Labels: [][]string{{"x"}, {"x", "y"}}}
	if _, err := Aggregate(ragged); err == nil {
		t.Fatal("expected ragged batch error")
	}
}
