// ABOUTME: Campaign API handlers: run creation (JSON, SSE or async), history and provider state
// ABOUTME: Streams stage progress as server-sent events

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/adbrain/internal/campaign"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/pipeline"
	"github.com/2389/adbrain/internal/store"
	"github.com/2389/adbrain/internal/workflow"
)

const maxRequestBody = 1 << 20

// AcceptedResponse is returned for asynchronous runs.
type AcceptedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Events string `json:"events"`
}

// failureResponse carries the partial result of a run whose terminal stage
// did not produce an artifact.
type failureResponse struct {
	Error  string           `json:"error"`
	Result *workflow.Result `json:"result"`
}

// ProviderEntry describes one chain member.
type ProviderEntry struct {
	Name     string        `json:"name"`
	Priority int           `json:"priority"`
	Timeout  time.Duration `json:"timeout"`
}

// ProvidersResponse is the body of GET /api/providers.
type ProvidersResponse struct {
	Chain   []ProviderEntry           `json:"chain"`
	Gateway generation.Stats          `json:"gateway"`
	Calls   []store.ProviderCallStats `json:"calls"`
}

// handleCreateCampaign runs a campaign. The response mode follows the request:
//   - ?async=true returns 202 immediately; progress is at /api/campaigns/{id}/events
//   - Accept: text/event-stream streams stage events and then the result
//   - otherwise the full result is returned as JSON
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req, err := pipeline.Prepare(req)
	if err != nil {
		s.sendValidationError(w, err)
		return
	}

	runID := uuid.New().String()
	switch {
	case r.URL.Query().Get("async") == "true":
		s.startAsync(w, runID, req)
	case strings.Contains(r.Header.Get("Accept"), "text/event-stream"):
		s.streamRun(w, r, runID, req)
	default:
		s.runJSON(w, r, runID, req)
	}
}

func (s *Server) runJSON(w http.ResponseWriter, r *http.Request, runID string, req campaign.Request) {
	s.broadcaster.Start(runID)
	res, err := s.pipeline.Run(r.Context(), runID, req, s.broadcaster.Publish)
	s.broadcaster.Finish(runID, res)
	if res == nil {
		s.sendRunError(w, err)
		return
	}
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, failureResponse{Error: err.Error(), Result: res})
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) startAsync(w http.ResponseWriter, runID string, req campaign.Request) {
	s.broadcaster.Start(runID)
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		res, err := s.pipeline.Run(s.runCtx, runID, req, s.broadcaster.Publish)
		if err != nil {
			s.logger.Warn("background run failed", "run_id", runID, "error", err)
		}
		s.broadcaster.Finish(runID, res)
	}()
	s.writeJSON(w, http.StatusAccepted, AcceptedResponse{
		RunID:  runID,
		Status: string(workflow.StatusRunning),
		Events: "/api/campaigns/" + runID + "/events",
	})
}

func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, runID string, req campaign.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	setSSEHeaders(w)
	s.writeSSEEvent(w, "started", map[string]string{"run_id": runID})
	flusher.Flush()

	var mu sync.Mutex
	progress := func(ev workflow.Event) {
		s.broadcaster.Publish(ev)
		mu.Lock()
		defer mu.Unlock()
		s.writeSSEEvent(w, eventStage, ev)
		flusher.Flush()
	}

	s.broadcaster.Start(runID)
	res, err := s.pipeline.Run(r.Context(), runID, req, progress)
	s.broadcaster.Finish(runID, res)

	mu.Lock()
	defer mu.Unlock()
	if err != nil {
		s.writeSSEEvent(w, "error", failureResponse{Error: err.Error(), Result: res})
	} else {
		s.writeSSEEvent(w, eventResult, res)
	}
	flusher.Flush()
}

// handleListCampaigns returns run summaries, newest first.
// Query parameters: limit, brand, status, since (RFC 3339).
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Brand: q.Get("brand"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.sendJSONError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &t
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleGetCampaign returns the stored result of a finished run.
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		if s.broadcaster.Live(id) {
			s.writeJSON(w, http.StatusAccepted, AcceptedResponse{
				RunID:  id,
				Status: string(workflow.StatusRunning),
				Events: "/api/campaigns/" + id + "/events",
			})
			return
		}
		s.sendJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(run.Result)
}

// handleCampaignEvents streams progress of a live run, replaying what has
// happened so far. A finished run yields a single result event.
func (s *Server) handleCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if ch, live := s.broadcaster.Subscribe(r.Context(), id); live {
		setSSEHeaders(w)
		flusher.Flush()
		s.streamMessages(r.Context(), w, flusher, ch)
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "run_id", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	setSSEHeaders(w)
	s.writeSSEEvent(w, eventResult, json.RawMessage(run.Result))
	flusher.Flush()
}

func (s *Server) streamMessages(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, ch <-chan Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.writeSSEEvent(w, msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

// handleProviders reports the chain, cache and health state, and call
// statistics. ?window=1h limits the statistics to recent calls.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.sendJSONError(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		t := time.Now().Add(-d)
		since = &t
	}

	calls, err := s.store.ProviderCallStats(r.Context(), since)
	if err != nil {
		s.logger.Error("failed to load provider stats", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	chain := s.pipeline.Chain().Ordered()
	entries := make([]ProviderEntry, len(chain))
	for i, d := range chain {
		entries[i] = ProviderEntry{Name: d.Name, Priority: d.Priority, Timeout: d.Timeout}
	}
	s.writeJSON(w, http.StatusOK, ProvidersResponse{
		Chain:   entries,
		Gateway: s.pipeline.Gateway().Stats(),
		Calls:   calls,
	})
}

func (s *Server) sendValidationError(w http.ResponseWriter, err error) {
	var verr *campaign.ValidationError
	if errors.As(err, &verr) {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  verr.Error(),
			"fields": verr.Fields,
		})
		return
	}
	s.sendJSONError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) sendRunError(w http.ResponseWriter, err error) {
	var verr *campaign.ValidationError
	if errors.As(err, &verr) {
		s.sendValidationError(w, err)
		return
	}
	s.logger.Error("run failed", "error", err)
	s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
