// ABOUTME: Signal snapshot types: one entry per source with status and freshness
// ABOUTME: Usable() applies the staleness rule: stale data only when nothing fresher exists

package signals

import (
	"sort"
	"time"
)

// Status reports how a source fared in one aggregation.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusPartial means the fetch failed and the last good payload was reused.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Item is one normalized record from a source.
type Item struct {
	Title string  `json:"title"`
	URL   string  `json:"url,omitempty"`
	Score float64 `json:"score,omitempty"`
}

// Entry is one source's contribution to a snapshot.
type Entry struct {
	Source    string        `json:"source"`
	Category  string        `json:"category,omitempty"`
	Items     []Item        `json:"items,omitempty"`
	FetchedAt time.Time     `json:"fetched_at,omitzero"`
	Latency   time.Duration `json:"latency"`
	Status    Status        `json:"status"`
	Stale     bool          `json:"stale,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Snapshot is the fused result of one aggregation.
type Snapshot struct {
	Entries     map[string]Entry `json:"entries"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Elapsed is the wall time of the aggregation.
func (s Snapshot) Elapsed() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}

// Usable returns entries carrying data. Stale entries are excluded unless
// no fresh entry exists.
func (s Snapshot) Usable() []Entry {
	var fresh, stale []Entry
	for _, e := range s.sorted() {
		if e.Status == StatusFailed || len(e.Items) == 0 {
			continue
		}
		if e.Stale {
			stale = append(stale, e)
		} else {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) > 0 {
		return fresh
	}
	return stale
}

// Empty reports whether the snapshot has no usable data.
func (s Snapshot) Empty() bool {
	return len(s.Usable()) == 0
}

// Succeeded lists the names of sources that fetched successfully, sorted.
func (s Snapshot) Succeeded() []string {
	var names []string
	for _, e := range s.sorted() {
		if e.Status == StatusSuccess {
			names = append(names, e.Source)
		}
	}
	return names
}

// Headlines returns up to n item titles from usable entries, round-robin
// across sources so one chatty feed does not crowd out the rest.
func (s Snapshot) Headlines(n int) []string {
	usable := s.Usable()
	var out []string
	for i := 0; len(out) < n; i++ {
		progressed := false
		for _, e := range usable {
			if i < len(e.Items) {
				out = append(out, e.Items[i].Title)
				progressed = true
				if len(out) == n {
					break
				}
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

func (s Snapshot) sorted() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
