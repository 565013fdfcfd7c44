package orchestrator

import "encoding/json"

// Stage is a step of one pipeline run. A run moves forward through the
// stages in order; StageError is absorbing.
type Stage int

const (
	StageStart Stage = iota
	StageLoaded
	StageSegmented
	StageExtracted
	StagePreprocessed
	StageClassified
	StageAggregated
	StageDone
	StageError
)

var stageNames = [...]string{
	StageStart:        "start",
	StageLoaded:       "loaded",
	StageSegmented:    "segmented",
	StageExtracted:    "extracted",
	StagePreprocessed: "preprocessed",
	StageClassified:   "classified",
	StageAggregated:   "aggregated",
	StageDone:         "done",
	StageError:        "error",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// PredictionBatch holds, per classifier and in ensemble order, the decoded
// label of every surviving segment in segment order.
type PredictionBatch struct {
	Models []string
	Labels [][]string
}

// Segments is the number of segments each classifier labelled.
func (b PredictionBatch) Segments() int {
	if len(b.Labels) == 0 {
		return 0
	}
	return len(b.Labels[0])
}

// AggregatedResult is the per-file decision.
type AggregatedResult struct {
	ByModel  map[string]string
	Overall  string
	Segments int
}

// Prediction is the success record returned to callers.
type Prediction struct {
	RandomForest      string `json:"RandomForest"`
	KNN               string `json:"KNN"`
	XGBoost           string `json:"XGBoost"`
	Overall           string `json:"Overall"`
	SegmentsProcessed int    `json:"segments_processed"`
}

// Result is either a Prediction or an Error, never both.
type Result struct {
	Prediction *Prediction
	Err        *Error
	// Stage is the last stage reached; StageDone on success.
	Stage Stage
}

// OK reports whether the run produced a prediction.
func (r Result) OK() bool { return r.Err == nil && r.Prediction != nil }

// MarshalJSON writes the prediction fields on success and {"error": msg}
// otherwise.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Err.Error()})
	}
	return json.Marshal(r.Prediction)
}
