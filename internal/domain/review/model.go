package review

import (
	"fmt"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusResolved  Status = "resolved"
	StatusDiscarded Status = "discarded"
)

type Decision string

const (
	// DecisionConfirm binds the record's external ID to the candidate entity.
	DecisionConfirm Decision = "confirm"
	// DecisionDiscard rejects the candidate and creates a fresh entity instead.
	DecisionDiscard Decision = "discard"
)

var AllDecisions = map[Decision]struct{}{
	DecisionConfirm: {},
	DecisionDiscard: {},
}

// TerminalStatus is the status a pending item ends in for this decision.
func (d Decision) TerminalStatus() Status {
	if d == DecisionDiscard {
		return StatusDiscarded
	}
	return StatusResolved
}

// Item is an ambiguous record parked for a human decision.
type Item struct {
	ID                string
	Record            record.NormalizedRecord
	CandidateEntityID string
	Score             float64
	Status            Status
	Decision          Decision
	CreatedAt         time.Time
	ResolvedAt        time.Time
}

func (i Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("review item id is required")
	}
	if err := i.Record.Validate(); err != nil {
		return fmt.Errorf("review item record: %w", err)
	}
	if i.CandidateEntityID == "" {
		return fmt.Errorf("review item candidate entity id is required")
	}
	if i.Score < 0 || i.Score > 1 {
		return fmt.Errorf("review item score out of range: %f", i.Score)
	}

	return nil
}
