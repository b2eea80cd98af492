package runner

import (
	"time"
)

// Status is the outcome of one scenario run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// Capture is one value stored by a read_attribute step.
type Capture struct {
	Label string
	Value string
}

// StepRecord is the trace entry for one executed step.
type StepRecord struct {
	Index    int
	Kind     string
	Target   string
	Duration time.Duration
	// Err is nil for a step that passed.
	Err error
}

// Result is produced once per run and never modified afterwards. Slice
// accessors return copies.
type Result struct {
	runID           string
	scenario        string
	status          Status
	captures        []Capture
	artifacts       []string
	steps           []StepRecord
	failedStep      int
	err             error
	failureArtifact string
	started         time.Time
	duration        time.Duration
}

func (r Result) RunID() string           { return r.runID }
func (r Result) Scenario() string        { return r.scenario }
func (r Result) Status() Status          { return r.status }
func (r Result) Passed() bool            { return r.status == StatusPassed }
func (r Result) Started() time.Time      { return r.started }
func (r Result) Duration() time.Duration { return r.duration }

// FailedStep is the zero-based index of the failing step, or -1 when the run
// passed or failed before any step (session open failure).
func (r Result) FailedStep() int { return r.failedStep }

// Err is the failure cause, nil when passed.
func (r Result) Err() error { return r.err }

// FailureArtifact is the failure screenshot path, empty when passed or when
// the capture itself failed.
func (r Result) FailureArtifact() string { return r.failureArtifact }

func (r Result) Captures() []Capture {
	return append([]Capture(nil), r.captures...)
}

// Value returns the captured value for label.
func (r Result) Value(label string) (string, bool) {
	for _, c := range r.captures {
		if c.Label == label {
			return c.Value, true
		}
	}
	return "", false
}

func (r Result) Artifacts() []string {
	return append([]string(nil), r.artifacts...)
}

func (r Result) Steps() []StepRecord {
	return append([]StepRecord(nil), r.steps...)
}
