// ABOUTME: Tests for snapshot freshness filtering, headlines and trend scoring
// ABOUTME: Builds snapshots by hand to exercise the staleness rule directly

package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsable_ExcludesStaleWhenFreshExists(t *testing.T) {
	snap := Snapshot{Entries: map[string]Entry{
		"fresh":  {Source: "fresh", Status: StatusSuccess, Items: items("new")},
		"old":    {Source: "old", Status: StatusPartial, Stale: true, Items: items("old")},
		"broken": {Source: "broken", Status: StatusFailed},
	}}

	usable := snap.Usable()
	assert.Len(t, usable, 1)
	assert.Equal(t, "fresh", usable[0].Source)
}

func TestUsable_FallsBackToStale(t *testing.T) {
	snap := Snapshot{Entries: map[string]Entry{
		"old":    {Source: "old", Status: StatusPartial, Stale: true, Items: items("old")},
		"broken": {Source: "broken", Status: StatusFailed},
	}}

	usable := snap.Usable()
	assert.Len(t, usable, 1)
	assert.Equal(t, "old", usable[0].Source)
}

func TestHeadlines_RoundRobin(t *testing.T) {
	snap := Snapshot{Entries: map[string]Entry{
		"a": {Source: "a", Status: StatusSuccess, Items: items("a1", "a2", "a3")},
		"b": {Source: "b", Status: StatusSuccess, Items: items("b1")},
	}}

	assert.Equal(t, []string{"a1", "b1", "a2"}, snap.Headlines(3))
	assert.Equal(t, []string{"a1", "b1", "a2", "a3"}, snap.Headlines(10))
	assert.Empty(t, Snapshot{}.Headlines(5))
}

func TestElapsed(t *testing.T) {
	start := time.Now()
	snap := Snapshot{StartedAt: start, CompletedAt: start.Add(time.Second)}
	assert.Equal(t, time.Second, snap.Elapsed())
}

func TestScore(t *testing.T) {
	snap := Snapshot{Entries: map[string]Entry{
		"github": {Source: "github", Category: "github", Status: StatusSuccess, Items: items("1", "2", "3", "4")},
		"hn":     {Source: "hn", Category: "hackernews", Status: StatusSuccess, Items: items("1", "2")},
		"news":   {Source: "news", Category: "news", Status: StatusSuccess, Items: items("1", "2", "3", "4", "5", "6", "7", "8")},
	}}

	sc := Score(snap)
	// github: 4*1.5=6, hackernews: 2*1.5=3, news: min(12,10)=10
	assert.InDelta(t, 1.2, sc.InnovationDepth, 1e-9)
	assert.InDelta(t, 0.9, sc.MarketValidation, 1e-9)
	assert.InDelta(t, 4.0, sc.SocialMomentum, 1e-9)
	assert.Greater(t, sc.Overall, 0.0)

	assert.Equal(t, Scores{}, Score(Snapshot{}))
}
