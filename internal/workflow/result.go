// ABOUTME: Serializable outcome of one workflow run
// ABOUTME: Marks which artifacts are authoritative and which are placeholders

package workflow

import (
	"time"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/signals"
)

// RunStatus summarizes a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunDegraded  RunStatus = "degraded"
	RunFailed    RunStatus = "failed"
)

// Branch describes the live data branch of a run.
type Branch struct {
	Status    Status        `json:"status"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Elapsed   time.Duration `json:"elapsed"`
	Succeeded []string      `json:"succeeded,omitempty"`
}

// Result is the serializable record of a run. Stages are in topological order.
type Result struct {
	RunID        string           `json:"run_id"`
	Request      campaign.Request `json:"request"`
	Status       RunStatus        `json:"status"`
	Stages       []Output         `json:"stages"`
	Signals      signals.Snapshot `json:"signals"`
	SignalBranch Branch           `json:"signal_branch"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Duration     time.Duration    `json:"duration"`
}

// Stage returns the output of the named stage.
func (r *Result) Stage(name string) (Output, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return Output{}, false
}

// Count returns how many stages ended in status.
func (r *Result) Count(status Status) int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == status {
			n++
		}
	}
	return n
}

func summarize(stages []Output) RunStatus {
	status := RunCompleted
	for _, s := range stages {
		switch s.Status {
		case StatusFailed, StatusSkipped:
			return RunFailed
		case StatusDegraded:
			status = RunDegraded
		}
	}
	return status
}
