// ABOUTME: Tests for the campaign HTTP API, SSE streaming and server lifecycle
// ABOUTME: Runs the real pipeline against scripted providers and an in-memory store

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/adbrain/internal/config"
	"github.com/2389/adbrain/internal/generation"
	"github.com/2389/adbrain/internal/pipeline"
	"github.com/2389/adbrain/internal/store"
	"github.com/2389/adbrain/internal/workflow"
)

var replies = map[string]string{
	"MemeHarvester":        `{"trending_phrases":[{"phrase":"retro runners","trend_score":9.4,"context":"nostalgia"}],"cultural_moments":["summer"]}`,
	"NarrativeAligner":     `{"story_hook":"Run back to the future","narrative_framework":{"hero":"city runners"},"emotional_drivers":["nostalgia"]}`,
	"CopyCrafter":          `{"headlines":[{"text":"Retro never ran this fast","target_platform":"social media","appeal_type":"emotional"}]}`,
	"HookOptimizer":        `{"ranked_hooks":[{"headline":"Retro never ran this fast","shareability_score":9,"engagement_score":8,"viral_potential":8.5}]}`,
	"SequencePlanner":      `{"email_sequence":[{"step":1,"title":"Welcome"}]}`,
	"AnalyticsInterpreter": `{"performance_summary":{"overall_score":8},"improvement_tips":[{"tip":"Post at dusk","priority":"high"}]}`,
}

func scriptedChain() generation.Chain {
	p := generation.ProviderFunc(func(ctx context.Context, prompt string) (string, error) {
		for role, reply := range replies {
			if strings.Contains(prompt, role) {
				return reply, nil
			}
		}
		return "", errors.New("unexpected prompt")
	})
	return generation.Chain{{Name: "gemini", Priority: 1, Timeout: time.Second, Provider: p}}
}

const campaignBody = `{"topic":"sneakers","brand":"Stride","budget":5000}`

func newTestServer(t *testing.T, chain generation.Chain) (*Server, *store.MockStore) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMockStore()

	p, err := pipeline.New(context.Background(), cfg, st, pipeline.Options{Chain: chain, Logger: logger})
	require.NoError(t, err)

	s := New(cfg, p, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, st
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleReady_NoProviders(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no providers")
}

func TestHandleReady_WithProvider(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())
	rec := do(t, s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready (1 providers)", rec.Body.String())
}

func TestCreateCampaign_JSON(t *testing.T) {
	s, st := newTestServer(t, scriptedChain())

	rec := do(t, s, http.MethodPost, "/api/campaigns", campaignBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res workflow.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, workflow.RunCompleted, res.Status)
	require.Len(t, res.Stages, 6)
	for _, out := range res.Stages {
		assert.Equal(t, workflow.StatusCompleted, out.Status, out.Stage)
	}

	saved, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", saved.Status)
}

func TestCreateCampaign_InvalidJSON(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())
	rec := do(t, s, http.MethodPost, "/api/campaigns", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestCreateCampaign_ValidationFailure(t *testing.T) {
	s, st := newTestServer(t, scriptedChain())
	rec := do(t, s, http.MethodPost, "/api/campaigns", `{"topic":"sneakers","brand":"Stride","budget":-100}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error  string `json:"error"`
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "budget", body.Fields[0].Field)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Empty(t, st.Calls())
}

func TestCreateCampaign_SSE(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())
	rec := do(t, s, http.MethodPost, "/api/campaigns", campaignBody, "Accept", "text/event-stream")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: started\n"))
	assert.Contains(t, body, "event: stage\n")
	assert.Contains(t, body, `"status":"completed"`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
	last := body[strings.LastIndex(body, "event: "):]
	assert.True(t, strings.HasPrefix(last, "event: result\n"))
}

func TestCampaignLookup(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())

	rec := do(t, s, http.MethodPost, "/api/campaigns", campaignBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var res workflow.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))

	rec = do(t, s, http.MethodGet, "/api/campaigns/"+res.RunID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got workflow.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, res.RunID, got.RunID)

	rec = do(t, s, http.MethodGet, "/api/campaigns?brand=Stride&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []store.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, res.RunID, list.Runs[0].ID)

	rec = do(t, s, http.MethodGet, "/api/campaigns?brand=Other", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Runs)

	rec = do(t, s, http.MethodGet, "/api/campaigns/"+res.RunID+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "event: result\n"))
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "event: "))
}

func TestListCampaigns_BadParams(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/campaigns?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/campaigns?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCampaign_NotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/campaigns/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/campaigns/missing/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run not found")
}

func TestCreateCampaign_Async(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())

	rec := do(t, s, http.MethodPost, "/api/campaigns?async=true", campaignBody)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted AcceptedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)
	assert.Equal(t, "/api/campaigns/"+accepted.RunID+"/events", accepted.Events)

	require.Eventually(t, func() bool {
		return do(t, s, http.MethodGet, "/api/campaigns/"+accepted.RunID, "").Code == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHandleProviders(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/campaigns", campaignBody).Code)

	rec := do(t, s, http.MethodGet, "/api/providers?window=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body ProvidersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Chain, 1)
	assert.Equal(t, "gemini", body.Chain[0].Name)
	assert.Equal(t, 6, body.Gateway.Cache.Size)

	rec = do(t, s, http.MethodGet, "/api/providers?window=forever", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t, scriptedChain())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
