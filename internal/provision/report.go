package provision

import (
	"fmt"
	"io"
	"time"
)

// Outcome classifies what happened to one catalog entry.
type Outcome int

const (
	// Created means the service was absent and the create call succeeded.
	Created Outcome = iota
	// AlreadyExists means the server had the service; nothing was sent.
	AlreadyExists
	// Failed means the check or the create for this entry errored.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "exists"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result captures the outcome of registering a single catalog entry.
type Result struct {
	Name    string
	Outcome Outcome
	Err     error
}

// Report aggregates per-entry results for one provisioning pass.
type Report struct {
	Results  []Result
	Duration time.Duration
}

// Counts tallies the report by outcome.
func (r Report) Counts() (created, existing, failed int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case Created:
			created++
		case AlreadyExists:
			existing++
		case Failed:
			failed++
		}
	}
	return created, existing, failed
}

// Failed reports whether any entry failed.
func (r Report) Failed() bool {
	for _, res := range r.Results {
		if res.Outcome == Failed {
			return true
		}
	}
	return false
}

// Render writes the operator-facing console lines for the pass. Created
// entries print "<name> service created!", failed entries print
// "An exception occured: <error>" (sic), and entries that already existed
// print nothing.
func (r Report) Render(w io.Writer) error {
	for _, res := range r.Results {
		switch res.Outcome {
		case Created:
			if _, err := fmt.Fprintf(w, "%s service created!\n", res.Name); err != nil {
				return err
			}
		case Failed:
			if _, err := fmt.Fprintf(w, "An exception occured: %v\n", res.Err); err != nil {
				return err
			}
		}
	}
	return nil
}
