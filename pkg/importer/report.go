package importer

import (
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittodrive/pkg/namespace"
)

// Status is the result of one message.
type Status int

const (
	StatusImported Status = iota
	StatusSkipped
	StatusFailed

	// StatusCancelled marks an item interrupted by cancellation. It never
	// appears in a Report.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusImported:
		return "imported"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome records what happened to one message.
type Outcome struct {
	MessageID int64
	Status    Status

	// File is set for imported messages
	File *namespace.File

	// Reason explains a skip
	Reason string

	// Err is set for failures
	Err error
}

// Report summarizes a job. Counts are derived from Outcomes.
type Report struct {
	JobID   uuid.UUID
	Mode    Mode
	Channel string
	Dest    namespace.Path

	// Total is the number of messages in the requested range
	Total int

	Imported int
	Skipped  int
	Errors   int

	// Cancelled is set when the job stopped before the end of the range
	Cancelled bool

	Outcomes []Outcome

	Started  time.Time
	Finished time.Time
}

func newReport(req Request) *Report {
	return &Report{
		JobID:   uuid.New(),
		Mode:    req.Mode,
		Channel: req.Channel,
		Dest:    req.Dest,
		Total:   int(req.Len()),
		Started: time.Now(),
	}
}

func (r *Report) add(out Outcome) {
	r.Outcomes = append(r.Outcomes, out)
	switch out.Status {
	case StatusImported:
		r.Imported++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Errors++
	}
}

// Processed returns the number of messages handled before the job ended.
func (r *Report) Processed() int { return len(r.Outcomes) }

// Failures returns the failed outcomes.
func (r *Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	return out
}
