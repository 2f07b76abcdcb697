// Package ensemble normalizes agent weights and combines agent scores into
// one weighted risk score with an exact per-agent breakdown.
package ensemble

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// Stages reported by ValidationError.
const (
	StageNormalize = "normalize"
	StageAggregate = "aggregate"
)

// Validation sentinels. Test with errors.Is.
var (
	ErrWeightCount    = eris.New("ensemble: weight count does not match score count")
	ErrNegativeWeight = eris.New("ensemble: negative weight")
	ErrInvalidWeight  = eris.New("ensemble: weight is NaN or infinite")
	ErrZeroWeightSum  = eris.New("ensemble: weights sum to zero")
	ErrScoreCount     = eris.New("ensemble: score count does not match weight count")
	ErrInvalidScore   = eris.New("ensemble: score is NaN or infinite")
)

// ValidationError reports a caller or configuration defect detected while
// normalizing or aggregating. It is never transient.
type ValidationError struct {
	Stage  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Stage, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(stage string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Stage: stage, Err: err, Detail: fmt.Sprintf(format, args...)}
}
