// ABOUTME: Concrete signal sources: JSON APIs, RSS/Atom/HTML feeds and static fixtures
// ABOUTME: URLs are templated with the campaign topic at build time

package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/2389/adbrain/internal/config"
)

const defaultItemLimit = 10

// BuildSources creates one Source per config entry for topic.
func BuildSources(cfgs []config.SourceConfig, topic string, client *http.Client) []Source {
	sources := make([]Source, 0, len(cfgs))
	escaped := url.QueryEscape(topic)
	for _, c := range cfgs {
		u := strings.ReplaceAll(c.URL, "{topic}", escaped)
		limit := c.Limit
		if limit <= 0 {
			limit = defaultItemLimit
		}
		category := c.Category
		if category == "" {
			category = c.Name
		}
		switch c.Kind {
		case config.SourceFeed:
			sources = append(sources, &FeedSource{
				SourceName: c.Name, SourceCategory: category, URL: u,
				Selector: c.Selector, Topic: topic, Limit: limit, Client: client,
			})
		default:
			sources = append(sources, &JSONSource{
				SourceName: c.Name, SourceCategory: category, URL: u,
				Limit: limit, Client: client,
			})
		}
	}
	return sources
}

func get(ctx context.Context, client *http.Client, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "adbrain/1.0")
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// JSONSource reads a JSON API. It understands a top-level array, an object
// with an "items", "results", "data" or "hits" array, and arrays of bare IDs.
type JSONSource struct {
	SourceName     string
	SourceCategory string
	URL            string
	Limit          int
	Client         *http.Client
}

// Name implements Source.
func (s *JSONSource) Name() string { return s.SourceName }

// Category implements Source.
func (s *JSONSource) Category() string { return s.SourceCategory }

// Fetch implements Source.
func (s *JSONSource) Fetch(ctx context.Context) ([]Item, error) {
	body, err := get(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var doc any
	if err := json.NewDecoder(io.LimitReader(body, 8<<20)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	return extractItems(doc, s.Limit), nil
}

func extractItems(doc any, limit int) []Item {
	var list []any
	switch v := doc.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, key := range []string{"items", "results", "data", "hits", "articles"} {
			if arr, ok := v[key].([]any); ok {
				list = arr
				break
			}
		}
	}

	items := make([]Item, 0, min(limit, len(list)))
	for _, raw := range list {
		if len(items) >= limit {
			break
		}
		switch e := raw.(type) {
		case map[string]any:
			it := Item{
				Title: firstString(e, "title", "full_name", "name", "headline"),
				URL:   firstString(e, "html_url", "url", "link"),
			}
			for _, k := range []string{"stargazers_count", "score", "points"} {
				if f, ok := e[k].(float64); ok {
					it.Score = f
					break
				}
			}
			if it.Title != "" {
				items = append(items, it)
			}
		case float64:
			items = append(items, Item{Title: fmt.Sprintf("%.0f", e)})
		case string:
			items = append(items, Item{Title: e})
		}
	}
	return items
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// defaultFeedSelector matches RSS and Atom titles plus common HTML headline markup.
const defaultFeedSelector = "item > title, entry > title, article h2, h3 a"

// FeedSource scrapes headlines from an RSS, Atom or HTML page. When Topic
// is set, headlines mentioning one of its words are preferred.
type FeedSource struct {
	SourceName     string
	SourceCategory string
	URL            string
	Selector       string
	Topic          string
	Limit          int
	Client         *http.Client
}

// Name implements Source.
func (s *FeedSource) Name() string { return s.SourceName }

// Category implements Source.
func (s *FeedSource) Category() string { return s.SourceCategory }

// Fetch implements Source.
func (s *FeedSource) Fetch(ctx context.Context) ([]Item, error) {
	body, err := get(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	selector := s.Selector
	if selector == "" {
		selector = defaultFeedSelector
	}

	var all []Item
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if title == "" {
			return
		}
		href, _ := sel.Attr("href")
		all = append(all, Item{Title: title, URL: href})
	})

	items := filterByTopic(all, s.Topic)
	limit := s.Limit
	if limit <= 0 {
		limit = defaultItemLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// filterByTopic keeps items mentioning a topic word, or all items when none match.
func filterByTopic(items []Item, topic string) []Item {
	words := strings.Fields(strings.ToLower(topic))
	if len(words) == 0 {
		return items
	}
	var matched []Item
	for _, it := range items {
		title := strings.ToLower(it.Title)
		for _, w := range words {
			if len(w) > 2 && strings.Contains(title, w) {
				matched = append(matched, it)
				break
			}
		}
	}
	if len(matched) == 0 {
		return items
	}
	return matched
}

// StaticSource returns fixed items after an optional delay. It honours ctx.
type StaticSource struct {
	SourceName     string
	SourceCategory string
	Items          []Item
	Delay          time.Duration
	Err            error
}

// Name implements Source.
func (s *StaticSource) Name() string { return s.SourceName }

// Category implements Source.
func (s *StaticSource) Category() string {
	if s.SourceCategory == "" {
		return s.SourceName
	}
	return s.SourceCategory
}

// Fetch implements Source.
func (s *StaticSource) Fetch(ctx context.Context) ([]Item, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Items, nil
}
