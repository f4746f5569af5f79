// ABOUTME: Orchestrator executing the stage graph for one campaign run
// ABOUTME: Owns scheduling, time budgets, retries, placeholder fallback and progress events

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/signals"
)

// SignalBranch gathers live data for a request. It must return by its own deadline.
type SignalBranch func(ctx context.Context, req campaign.Request) signals.Snapshot

// Event reports one stage status transition.
type Event struct {
	RunID    string    `json:"run_id"`
	Seq      int       `json:"seq"`
	Stage    string    `json:"stage"`
	Status   Status    `json:"status"`
	At       time.Time `json:"at"`
	Provider string    `json:"provider,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ProgressFunc receives events serially, once per transition.
type ProgressFunc func(Event)

// Options configures an Orchestrator.
type Options struct {
	Graph           *Graph
	Signals         SignalBranch
	DefaultBudget   time.Duration
	DefaultAttempts int
	RetryBackoff    time.Duration
	Logger          *slog.Logger
}

// Orchestrator runs a Graph. It holds no per-run state and may run
// several campaigns concurrently.
type Orchestrator struct {
	graph    *Graph
	signals  SignalBranch
	budget   time.Duration
	attempts int
	backoff  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Graph == nil {
		return nil, errors.New("workflow graph is required")
	}
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = 90 * time.Second
	}
	if opts.DefaultAttempts < 1 {
		opts.DefaultAttempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		graph:    opts.Graph,
		signals:  opts.Signals,
		budget:   opts.DefaultBudget,
		attempts: opts.DefaultAttempts,
		backoff:  opts.RetryBackoff,
		now:      time.Now,
		logger:   logger.With("component", "workflow"),
	}, nil
}

// Graph returns the graph the orchestrator runs.
func (o *Orchestrator) Graph() *Graph { return o.graph }

type stageDone struct {
	name string
	out  Output
}

// Run validates req and executes every stage at most once. A malformed
// request returns a *campaign.ValidationError before any stage runs. Partial
// failures are reported in the Result; the error is non-nil only when a
// terminal stage failed or was skipped.
func (o *Orchestrator) Run(ctx context.Context, req campaign.Request, progress ProgressFunc) (*Result, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return o.RunWithID(ctx, uuid.New().String(), req, progress)
}

// RunWithID is Run with a caller-chosen run ID. req must already be valid.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string, req campaign.Request, progress ProgressFunc) (*Result, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Clone()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := o.logger.With("run_id", runID)
	result := &Result{RunID: runID, Request: req, StartedAt: o.now()}

	seq := 0
	emit := func(out Output) {
		seq++
		if progress == nil {
			return
		}
		progress(Event{
			RunID:    runID,
			Seq:      seq,
			Stage:    out.Stage,
			Status:   out.Status,
			At:       o.now(),
			Provider: out.Provider,
			Error:    out.Error,
		})
	}

	order := o.graph.order
	outputs := make(map[string]Output, len(order))
	for _, name := range order {
		out := Output{Stage: name, Status: StatusPending}
		outputs[name] = out
		emit(out)
	}

	var snapshot signals.Snapshot
	var sigCh chan signals.Snapshot
	signalsDone := true
	if req.Flags.IncludeLiveData && o.signals != nil {
		signalsDone = false
		sigCh = make(chan signals.Snapshot, 1)
		result.SignalBranch = Branch{Status: StatusRunning, StartedAt: o.now()}
		go func() { sigCh <- o.signals(ctx, req) }()
	} else {
		result.SignalBranch = Branch{Status: StatusSkipped}
	}

	doneCh := make(chan stageDone, len(order))
	running := 0
	terminal := 0

	for terminal < len(order) || !signalsDone {
		for progressed := true; progressed; {
			progressed = false
			for _, name := range order {
				out := outputs[name]
				if out.Status != StatusPending {
					continue
				}
				st := o.graph.stages[name]

				ready := true
				blockedBy := ""
				for _, dep := range st.DependsOn {
					ds := outputs[dep].Status
					if ds == StatusFailed || ds == StatusSkipped {
						blockedBy = dep
						break
					}
					if !ds.Usable() {
						ready = false
					}
				}

				if blockedBy != "" {
					out.Status = StatusSkipped
					out.Error = fmt.Sprintf("upstream stage %s did not produce output", blockedBy)
					outputs[name] = out
					terminal++
					emit(out)
					logger.Info("stage skipped", "stage", name, "blocked_by", blockedBy)
					progressed = true
					continue
				}
				if !ready || (st.NeedsSignals && !signalsDone) {
					continue
				}

				out.Status = StatusRunning
				out.StartedAt = o.now()
				outputs[name] = out
				emit(out)
				logger.Debug("stage started", "stage", name)

				in := Input{RunID: runID, Request: req, View: newView(st, outputs)}
				if st.NeedsSignals {
					in.Signals = snapshot
				}
				running++
				go func() {
					doneCh <- stageDone{name: st.Name, out: o.execute(ctx, st, in)}
				}()
			}
		}

		if terminal == len(order) && signalsDone {
			break
		}
		if running == 0 && signalsDone {
			// Unreachable for a validated DAG; refuse to spin.
			for _, name := range order {
				if out := outputs[name]; out.Status == StatusPending {
					out.Status = StatusSkipped
					out.Error = "stage could not be scheduled"
					outputs[name] = out
					terminal++
					emit(out)
				}
			}
			continue
		}

		select {
		case d := <-doneCh:
			running--
			terminal++
			outputs[d.name] = d.out
			emit(d.out)
			logger.Info("stage finished",
				"stage", d.name,
				"status", d.out.Status,
				"provider", d.out.Provider,
				"duration", d.out.Duration,
			)
		case snap := <-sigCh:
			snapshot = snap
			signalsDone = true
			sigCh = nil
			result.SignalBranch.Status = StatusCompleted
			result.SignalBranch.Elapsed = o.now().Sub(result.SignalBranch.StartedAt)
			result.SignalBranch.Succeeded = snap.Succeeded()
			logger.Info("signal branch finished",
				"succeeded", len(result.SignalBranch.Succeeded),
				"elapsed", result.SignalBranch.Elapsed,
			)
		}
	}

	result.Signals = snapshot
	result.Stages = make([]Output, 0, len(order))
	for _, name := range order {
		result.Stages = append(result.Stages, outputs[name])
	}
	result.FinishedAt = o.now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Status = summarize(result.Stages)

	var terminalErrs []error
	for _, name := range o.graph.Terminals() {
		out := outputs[name]
		if out.Status == StatusFailed || out.Status == StatusSkipped {
			terminalErrs = append(terminalErrs, fmt.Errorf("%w: %s: %s", ErrTerminalStageFailed, name, out.Error))
		}
	}
	logger.Info("run finished", "status", result.Status, "duration", result.Duration)
	if len(terminalErrs) > 0 {
		return result, errors.Join(terminalErrs...)
	}
	return result, nil
}

type invokeResult struct {
	res StageResult
	err error
}

// execute runs one stage to a terminal Output under its budget.
func (o *Orchestrator) execute(ctx context.Context, st Stage, in Input) Output {
	budget := st.Budget
	if budget <= 0 {
		budget = o.budget
	}
	attempts := st.Attempts
	if attempts < 1 {
		attempts = o.attempts
	}

	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	out := Output{Stage: st.Name, StartedAt: o.now()}
	var res StageResult
	var err error
	for out.Attempts < attempts {
		out.Attempts++
		in.Attempt = out.Attempts
		res, err = o.invoke(stageCtx, st, in)
		if err == nil && res.Artifact == nil {
			err = errors.New("stage produced no artifact")
		}
		if err == nil || classify(err) == StatusFailed || stageCtx.Err() != nil {
			break
		}
		if out.Attempts < attempts && !o.sleep(stageCtx, o.backoff<<(out.Attempts-1)) {
			break
		}
	}

	out.Status = classify(err)
	switch out.Status {
	case StatusCompleted:
		out.Artifact = res.Artifact
		out.Provider = res.Provider
		out.Cached = res.Cached
	case StatusDegraded:
		out.Error = err.Error()
		if st.Placeholder == nil {
			out.Status = StatusFailed
			break
		}
		out.Artifact = st.Placeholder(in)
	case StatusFailed:
		out.Error = err.Error()
	}

	out.FinishedAt = o.now()
	out.Duration = out.FinishedAt.Sub(out.StartedAt)
	return out
}

// invoke runs the stage body, abandoning it when the budget expires and
// turning a panic into a fatal stage error.
func (o *Orchestrator) invoke(ctx context.Context, st Stage, in Input) (StageResult, error) {
	done := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invokeResult{err: Fatal(st.Name, fmt.Errorf("panic: %v", r))}
			}
		}()
		res, err := st.Run(ctx, in)
		done <- invokeResult{res: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil && classify(r.err) != StatusFailed {
			return r.res, fmt.Errorf("%w: %v", ErrStageBudgetExceeded, r.err)
		}
		return r.res, r.err
	case <-ctx.Done():
		return StageResult{}, fmt.Errorf("%w: %v", ErrStageBudgetExceeded, ctx.Err())
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
