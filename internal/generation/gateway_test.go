// ABOUTME: Tests for the generation gateway fallback, caching and health integration
// ABOUTME: Uses scripted in-memory providers to observe attempt order and counts

package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the order in which providers were called.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) provider(name, reply string, err error) Provider {
	return ProviderFunc(func(ctx context.Context, _ string) (string, error) {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		if err != nil {
			return "", err
		}
		return reply, nil
	})
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(Options{CacheTTL: time.Minute, CacheMaxSize: 100})
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGenerate_AttemptsInPriorityOrder(t *testing.T) {
	g := newTestGateway(t)
	rec := &recorder{}
	fail := errors.New("down")

	chain := Chain{
		{Name: "third", Priority: 3, Timeout: time.Second, Provider: rec.provider("third", "ok", nil)},
		{Name: "first", Priority: 1, Timeout: time.Second, Provider: rec.provider("first", "", fail)},
		{Name: "second", Priority: 2, Timeout: time.Second, Provider: rec.provider("second", "", fail)},
	}

	resp, err := g.Generate(context.Background(), Request{Prompt: "hello"}, chain)
	require.NoError(t, err)
	assert.Equal(t, "third", resp.Provider)
	assert.Equal(t, 3, resp.Attempts)
	assert.False(t, resp.Cached)
	assert.Equal(t, []string{"first", "second", "third"}, rec.order())
}

func TestGenerate_StopsAtFirstSuccess(t *testing.T) {
	g := newTestGateway(t)
	rec := &recorder{}

	chain := Chain{
		{Name: "a", Priority: 1, Provider: rec.provider("a", "from a", nil)},
		{Name: "b", Priority: 2, Provider: rec.provider("b", "from b", nil)},
	}

	resp, err := g.Generate(context.Background(), Request{Prompt: "hi"}, chain)
	require.NoError(t, err)
	assert.Equal(t, "from a", resp.Text)
	assert.Equal(t, []string{"a"}, rec.order())
}

func TestGenerate_CacheHitMakesNoNetworkAttempt(t *testing.T) {
	g := newTestGateway(t)
	rec := &recorder{}
	chain := Chain{{Name: "a", Priority: 1, Provider: rec.provider("a", "cached text", nil)}}

	first, err := g.Generate(context.Background(), Request{Prompt: "Same  prompt"}, chain)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := g.Generate(context.Background(), Request{Prompt: "same prompt"}, chain)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached text", second.Text)
	assert.Equal(t, "a", second.Provider)

	assert.Len(t, rec.order(), 1)
	assert.Equal(t, int64(1), g.Stats().Cache.Hits)
}

func TestGenerate_ConcurrentMissesShareOneCall(t *testing.T) {
	g := newTestGateway(t)
	var calls atomic.Int32
	release := make(chan struct{})

	chain := Chain{{Name: "slow", Priority: 1, Timeout: 5 * time.Second, Provider: ProviderFunc(
		func(ctx context.Context, _ string) (string, error) {
			calls.Add(1)
			select {
			case <-release:
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := g.Generate(context.Background(), Request{Prompt: "shared"}, chain)
			assert.NoError(t, err)
			if resp != nil {
				assert.Equal(t, "done", resp.Text)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_ChainExhausted(t *testing.T) {
	g := newTestGateway(t)
	rec := &recorder{}
	fail := errors.New("quota")

	chain := Chain{
		{Name: "a", Priority: 1, Provider: rec.provider("a", "", fail)},
		{Name: "b", Priority: 2, Provider: rec.provider("b", "", fail)},
		{Name: "c", Priority: 3, Provider: rec.provider("c", "", fail)},
	}

	_, err := g.Generate(context.Background(), Request{Prompt: "p"}, chain)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChainExhausted)
	assert.ErrorIs(t, err, fail)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Len(t, chainErr.Attempts, 3)
	assert.LessOrEqual(t, len(rec.order()), len(chain))
}

func TestGenerate_TimeoutAbandonsHungProvider(t *testing.T) {
	g := newTestGateway(t)
	hang := make(chan struct{})
	defer close(hang)

	chain := Chain{
		{Name: "hung", Priority: 1, Timeout: 30 * time.Millisecond, Provider: ProviderFunc(
			func(ctx context.Context, _ string) (string, error) {
				<-hang // ignores ctx on purpose
				return "late", nil
			})},
		{Name: "backup", Priority: 2, Timeout: time.Second, Provider: Static{Response: "backup text"}},
	}

	start := time.Now()
	resp, err := g.Generate(context.Background(), Request{Prompt: "p"}, chain)
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Provider)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Degraded, g.Health().State("hung"))
}

func TestGenerate_TimeoutIsClassified(t *testing.T) {
	g := newTestGateway(t)
	chain := Chain{{Name: "slow", Priority: 1, Timeout: 10 * time.Millisecond, Provider: ProviderFunc(
		func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})}}

	_, err := g.Generate(context.Background(), Request{Prompt: "p"}, chain)
	assert.ErrorIs(t, err, ErrProviderTimeout)
	assert.ErrorIs(t, err, ErrChainExhausted)
}

func TestGenerate_MalformedStructuredResponseAdvances(t *testing.T) {
	g := newTestGateway(t)
	rec := &recorder{}
	chain := Chain{
		{Name: "chatty", Priority: 1, Provider: rec.provider("chatty", "I cannot produce JSON today", nil)},
		{Name: "strict", Priority: 2, Provider: rec.provider("strict", "```json\n{\"headline\":\"Go\"}\n```", nil)},
	}

	resp, err := g.Generate(context.Background(), Request{Prompt: "p", Schema: "copy"}, chain)
	require.NoError(t, err)
	assert.Equal(t, "strict", resp.Provider)
	assert.JSONEq(t, `{"headline":"Go"}`, string(resp.Structured))
	assert.Equal(t, Degraded, g.Health().State("chatty"))
}

func TestGenerate_SkipsUnavailableProvider(t *testing.T) {
	g := newTestGateway(t)
	rec := &recorder{}
	fail := errors.New("down")
	chain := Chain{
		{Name: "flaky", Priority: 1, Provider: rec.provider("flaky", "", fail)},
		{Name: "steady", Priority: 2, Provider: rec.provider("steady", "ok", nil)},
	}

	// Distinct prompts so nothing is served from the cache.
	for _, p := range []string{"one", "two", "three"} {
		_, err := g.Generate(context.Background(), Request{Prompt: p}, chain)
		require.NoError(t, err)
	}
	require.Equal(t, Unavailable, g.Health().State("flaky"))

	before := len(rec.order())
	resp, err := g.Generate(context.Background(), Request{Prompt: "four"}, chain)
	require.NoError(t, err)
	assert.Equal(t, "steady", resp.Provider)
	assert.Equal(t, []string{"steady"}, rec.order()[before:])
}

func TestGenerate_ObserverSeesEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	var records []CallRecord
	g := New(Options{Observer: func(r CallRecord) {
		mu.Lock()
		records = append(records, r)
		mu.Unlock()
	}})
	defer g.Close()

	chain := Chain{
		{Name: "a", Priority: 1, Provider: Static{Err: errors.New("nope")}},
		{Name: "b", Priority: 2, Provider: Static{Response: "yes"}},
	}
	_, err := g.Generate(context.Background(), Request{Prompt: "p"}, chain)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Provider)
	assert.Error(t, records[0].Err)
	assert.NoError(t, records[1].Err)
}

func TestGenerate_EmptyChainAndPrompt(t *testing.T) {
	g := newTestGateway(t)

	_, err := g.Generate(context.Background(), Request{Prompt: "p"}, nil)
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = g.Generate(context.Background(), Request{Prompt: "   "}, Chain{{Name: "a", Provider: Static{Response: "x"}}})
	assert.Error(t, err)
}

func TestGenerate_CancelledCallerDoesNotFailSharedCall(t *testing.T) {
	g := newTestGateway(t)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	chain := Chain{{Name: "a", Priority: 1, Timeout: 5 * time.Second, Provider: ProviderFunc(
		func(ctx context.Context, _ string) (string, error) {
			if calls.Add(1) == 1 {
				close(started)
			}
			select {
			case <-release:
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})}}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctxA, Request{Prompt: "shared"}, chain)
		errA <- err
	}()
	<-started

	respB := make(chan *Response, 1)
	errB := make(chan error, 1)
	go func() {
		resp, err := g.Generate(context.Background(), Request{Prompt: "shared"}, chain)
		respB <- resp
		errB <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	require.NoError(t, <-errB)
	resp := <-respB
	require.NotNil(t, resp)
	assert.Equal(t, "done", resp.Text)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, Healthy, g.Health().State("a"))
}
