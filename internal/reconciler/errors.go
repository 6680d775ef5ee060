package reconciler

import "fmt"

// Stage identifies where in the reconciliation flow a failure happened.
// Callers use it to decide whether the email should be retried and whether
// compensation already ran.
type Stage string

const (
	StageQuery    Stage = "query"
	StageModel    Stage = "model"
	StageApply    Stage = "apply"
	StageFinalize Stage = "finalize"
	StageRollback Stage = "rollback"
)

// Error wraps a reconciliation failure with the stage it occurred in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reconciliation failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) *Error {
	return &Error{Stage: stage, Err: err}
}
