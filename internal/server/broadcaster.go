// ABOUTME: In-memory fan-out of run progress to SSE watchers keyed by run ID
// ABOUTME: Replays the backlog to late subscribers and closes streams when the run finishes

package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/adbrain/internal/workflow"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	eventStage  = "stage"
	eventResult = "result"
)

// Message is one SSE frame.
type Message struct {
	Event string
	Data  any
}

type liveRun struct {
	backlog     []Message
	subscribers map[string]chan Message // subID -> ch
}

// RunBroadcaster publishes progress of in-flight runs. A run is live between
// Start and Finish; after Finish its record lives only in the store.
type RunBroadcaster struct {
	mu     sync.Mutex
	runs   map[string]*liveRun
	logger *slog.Logger
}

// NewRunBroadcaster creates a broadcaster. Pass nil logger for default.
func NewRunBroadcaster(logger *slog.Logger) *RunBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunBroadcaster{
		runs:   make(map[string]*liveRun),
		logger: logger.With("component", "broadcaster"),
	}
}

// Start marks runID live.
func (b *RunBroadcaster) Start(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.runs[runID]; !ok {
		b.runs[runID] = &liveRun{subscribers: make(map[string]chan Message)}
	}
}

// Live reports whether runID is between Start and Finish.
func (b *RunBroadcaster) Live(runID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.runs[runID]
	return ok
}

// Subscribe returns a channel that first replays everything published for
// runID so far. ok is false when the run is not live. The channel is closed
// when the run finishes or ctx is cancelled.
func (b *RunBroadcaster) Subscribe(ctx context.Context, runID string) (<-chan Message, bool) {
	b.mu.Lock()
	run, ok := b.runs[runID]
	if !ok {
		b.mu.Unlock()
		return nil, false
	}
	subID := uuid.New().String()
	ch := make(chan Message, subscriberBufferSize+len(run.backlog))
	for _, m := range run.backlog {
		ch <- m
	}
	run.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "run_id", runID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.unsubscribe(runID, subID)
	}()
	return ch, true
}

// Publish sends a stage event to every subscriber of its run.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *RunBroadcaster) Publish(ev workflow.Event) {
	b.send(ev.RunID, Message{Event: eventStage, Data: ev}, false)
}

// Finish sends the final result, closes every subscriber and forgets the run.
func (b *RunBroadcaster) Finish(runID string, data any) {
	b.send(runID, Message{Event: eventResult, Data: data}, true)
}

func (b *RunBroadcaster) send(runID string, msg Message, final bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[runID]
	if !ok {
		return
	}
	run.backlog = append(run.backlog, msg)
	for subID, ch := range run.subscribers {
		select {
		case ch <- msg:
		default:
			b.logger.Debug("dropped event for slow subscriber", "run_id", runID, "sub_id", subID)
		}
		if final {
			close(ch)
			delete(run.subscribers, subID)
		}
	}
	if final {
		delete(b.runs, runID)
	}
}

func (b *RunBroadcaster) unsubscribe(runID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, ok := b.runs[runID]
	if !ok {
		return
	}
	ch, exists := run.subscribers[subID]
	if !exists {
		return
	}
	delete(run.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "run_id", runID, "sub_id", subID)
}

// Close closes every subscriber channel and forgets all runs.
func (b *RunBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for runID, run := range b.runs {
		for subID, ch := range run.subscribers {
			close(ch)
			delete(run.subscribers, subID)
		}
		delete(b.runs, runID)
	}
	b.logger.Debug("broadcaster closed")
}
