package models

// Stage names one step of the per-region pipeline.
type Stage string

const (
	StageAcquire Stage = "acquire"
	StageFilter  Stage = "filter"
	StageConvert Stage = "convert"
)

// Stages lists the pipeline steps in execution order.
var Stages = []Stage{StageAcquire, StageFilter, StageConvert}

// Outcome is what happened to a stage during one visit.
type Outcome string

const (
	OutcomeSkipped      Outcome = "skipped"       // output (or a downstream output) already on disk
	OutcomeDone         Outcome = "done"          // stage ran and produced its output
	OutcomeFailed       Outcome = "failed"        // stage ran and left no output; retried next run
	OutcomeMissingInput Outcome = "missing_input" // upstream artifact absent, nothing to do
	OutcomeNoSource     Outcome = "no_source"     // region has no extract link
)
