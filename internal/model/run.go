package model

import (
	"time"

	"github.com/google/uuid"
)

// StageOutcome is the result of a single stage within one pipeline run.
type StageOutcome struct {
	Stage    string
	Err      error
	Started  time.Time
	Finished time.Time
}

// Failed reports whether the stage returned an error.
func (o StageOutcome) Failed() bool {
	return o.Err != nil
}

// RunReport summarizes one pipeline run for a height.
type RunReport struct {
	ID       uuid.UUID
	Height   Height
	Outcomes []StageOutcome
	// Err is set when the run was aborted outside of the per-stage isolation.
	Err      error
	Started  time.Time
	Finished time.Time
}

// FailedStages returns the names of the stages that failed, in execution order.
func (r RunReport) FailedStages() []string {
	var failed []string
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o.Stage)
		}
	}
	return failed
}
