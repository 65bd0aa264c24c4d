package tracker

import "fmt"

// Stage names the step of a cycle that failed for a document.
type Stage string

const (
	StageCompare  Stage = "compare"
	StageAnnotate Stage = "annotate"
	StageCommit   Stage = "commit"
)

// StageError is a per-document failure.
type StageError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is the outcome for one document.
type Result struct {
	Current  string
	Baseline string
	// Output is the published diff, empty when no page changed visibly.
	Output string
	// Pages is the page count of the current document.
	Pages int
	// Dropped lists the identical pages left out of Output.
	Dropped []int
	Err     error
}

// Changed reports whether a diff was published and the baseline promoted.
func (r Result) Changed() bool {
	return r.Err == nil && r.Output != ""
}

// Status is the history label for the outcome.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return "failed"
	case r.Output != "":
		return "changed"
	default:
		return "unchanged"
	}
}

// Results maps each scanned current document to its outcome.
type Results map[string]Result

// Failed returns the results that carry an error.
func (rs Results) Failed() []Result {
	var out []Result
	for _, r := range rs {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
