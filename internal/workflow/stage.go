// ABOUTME: Stage definitions, per-stage output and the stage state machine
// ABOUTME: Pending -> Running -> Completed | Degraded | Failed, or Pending -> Skipped

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/signals"
)

// Status is the lifecycle state of a stage within one run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	// StatusDegraded means the stage produced its placeholder artifact.
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
	// StatusSkipped means an upstream stage failed.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDegraded, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// Usable reports whether downstream stages may consume the output.
func (s Status) Usable() bool {
	return s == StatusCompleted || s == StatusDegraded
}

var (
	// ErrTerminalStageFailed is returned by Run when a terminal stage failed
	// or was skipped because something upstream failed.
	ErrTerminalStageFailed = errors.New("terminal stage failed")
	// ErrStageBudgetExceeded is recorded when a stage runs out of time.
	ErrStageBudgetExceeded = errors.New("stage time budget exceeded")
)

// StageFatalError marks a non-recoverable stage failure, such as reading a
// dependency the stage never declared. It fails the stage and skips its dependents.
type StageFatalError struct {
	Stage string
	Err   error
}

func (e *StageFatalError) Error() string {
	return fmt.Sprintf("stage %s: fatal: %v", e.Stage, e.Err)
}

func (e *StageFatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a StageFatalError for stage.
func Fatal(stage string, err error) error {
	return &StageFatalError{Stage: stage, Err: err}
}

// StageResult is what a stage body hands back to the orchestrator.
type StageResult struct {
	Artifact any
	Provider string
	Cached   bool
}

// Input is everything a stage may read.
type Input struct {
	RunID   string
	Request campaign.Request
	// Signals is populated only for stages declaring NeedsSignals.
	Signals signals.Snapshot
	// Attempt is 1 on the first try.
	Attempt int
	View    View
}

// RunFunc is a stage body. Returning an error wrapping StageFatalError or
// campaign.ValidationError fails the stage; any other error is recoverable
// and ends in the placeholder once attempts are used up.
type RunFunc func(ctx context.Context, in Input) (StageResult, error)

// PlaceholderFunc builds the locally defined fallback artifact.
type PlaceholderFunc func(in Input) any

// Stage is one named node of the workflow graph.
type Stage struct {
	Name         string
	DependsOn    []string
	NeedsSignals bool
	// Budget bounds the stage including retries. Zero uses the orchestrator default.
	Budget time.Duration
	// Attempts is the number of tries before falling back. Zero uses the orchestrator default.
	Attempts    int
	Run         RunFunc
	Placeholder PlaceholderFunc
}

// Output is the record of one stage in a run.
type Output struct {
	Stage      string        `json:"stage"`
	Status     Status        `json:"status"`
	Artifact   any           `json:"artifact,omitempty"`
	Provider   string        `json:"provider,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// classify maps a stage error to its terminal status.
func classify(err error) Status {
	var fatal *StageFatalError
	var invalid *campaign.ValidationError
	switch {
	case err == nil:
		return StatusCompleted
	case errors.As(err, &fatal), errors.As(err, &invalid):
		return StatusFailed
	default:
		return StatusDegraded
	}
}
