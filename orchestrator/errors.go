package orchestrator

import "errors"

// Kind classifies pipeline failures.
type Kind string

const (
	KindDecode         Kind = "decode"
	KindSegmentation   Kind = "segmentation"
	KindTooShort       Kind = "too_short"
	KindNoFeatures     Kind = "no_features"
	KindSchemaMismatch Kind = "schema_mismatch"
	KindPrediction     Kind = "prediction"
	KindEmptyBatch     Kind = "empty_batch"
)

// ClientError reports whether the failure is caused by the input rather
// than the service.
func (k Kind) ClientError() bool {
	return k == KindTooShort
}

// Error is a failed run.
type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	Err   error
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// ErrNoPredictions is returned when aggregating an empty batch.
var ErrNoPredictions = errors.New("no predictions to aggregate")
