package job

import (
	"fmt"
	"time"
)

type ScheduleKind string

const (
	// ScheduleKindInterval runs the job every fixed duration.
	ScheduleKindInterval ScheduleKind = "interval"
	// ScheduleKindCron runs the job on a cron expression.
	ScheduleKindCron ScheduleKind = "cron"
	// ScheduleKindOnce runs the job a single time at scheduler start.
	ScheduleKindOnce ScheduleKind = "once"
)

type Schedule struct {
	Kind  ScheduleKind
	Every time.Duration
	Expr  string
}

func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleKindInterval:
		if s.Every <= 0 {
			return fmt.Errorf("interval schedule requires a positive duration")
		}
	case ScheduleKindCron:
		if s.Expr == "" {
			return fmt.Errorf("cron schedule requires an expression")
		}
	case ScheduleKindOnce:
	default:
		return fmt.Errorf("invalid schedule kind: %s", s.Kind)
	}

	return nil
}

// SourceJob configures one recurring collection run against one source.
type SourceJob struct {
	Name        string
	Adapter     string
	Schedule    Schedule
	Concurrency int
	// RateLimit is the maximum fetches per second against the source.
	// Zero disables rate limiting for the job.
	RateLimit float64
	Enabled   bool
}

func (j SourceJob) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if j.Adapter == "" {
		return fmt.Errorf("job adapter is required")
	}
	if err := j.Schedule.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	if j.Concurrency < 0 {
		return fmt.Errorf("job %s: concurrency must not be negative", j.Name)
	}
	if j.RateLimit < 0 {
		return fmt.Errorf("job %s: rate limit must not be negative", j.Name)
	}

	return nil
}
