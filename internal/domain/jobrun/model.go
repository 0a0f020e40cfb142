package jobrun

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Run is one execution of a source job with its resolution tallies.
type Run struct {
	ID         string
	JobName    string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time

	RecordsSeen int
	Matched     int
	Created     int
	Queued      int
	Failed      int

	Error string
}

func (r Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("job run id is required")
	}
	if r.JobName == "" {
		return fmt.Errorf("job run job name is required")
	}

	return nil
}
