// Package maintenance sequences Exchange servers into and out of
// maintenance mode and keeps DAG database placement honest. Steps are
// independent: one failing step is recorded and the sequence carries on,
// so a partially applied transition is a first-class, inspectable outcome
// rather than a swallowed exception.
package maintenance

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// StepResult is the outcome of one orchestration step.
type StepResult struct {
	Name    string
	Skipped bool
	Err     error
}

// OK reports whether the step ran without error.
func (r StepResult) OK() bool {
	return r.Err == nil
}

func (r StepResult) String() string {
	switch {
	case r.Skipped:
		return r.Name + ": skipped"
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Name, r.Err)
	default:
		return r.Name + ": ok"
	}
}

// Results is an ordered list of step outcomes.
type Results []StepResult

// Failed returns the steps that errored.
func (rs Results) Failed() Results {
	var failed Results
	for _, r := range rs {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Err aggregates all step errors, or nil when every step succeeded.
func (rs Results) Err() error {
	var merr *multierror.Error
	for _, r := range rs {
		if r.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return merr.ErrorOrNil()
}

// add records a completed step.
func (rs *Results) add(name string, err error) {
	*rs = append(*rs, StepResult{Name: name, Err: err})
}

// skip records a step that did not apply.
func (rs *Results) skip(name string) {
	*rs = append(*rs, StepResult{Name: name, Skipped: true})
}
