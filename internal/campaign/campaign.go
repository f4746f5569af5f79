// ABOUTME: Campaign request types shared by the workflow, agents and HTTP API
// ABOUTME: A Request is validated once at pipeline entry and is immutable afterwards

package campaign

import (
	"fmt"
	"math"
	"strings"
)

// Creativity controls how adventurous generated copy is allowed to be.
type Creativity string

const (
	CreativityLow    Creativity = "low"
	CreativityMedium Creativity = "medium"
	CreativityHigh   Creativity = "high"
)

// Valid reports whether c is a known creativity level.
func (c Creativity) Valid() bool {
	switch c {
	case CreativityLow, CreativityMedium, CreativityHigh:
		return true
	}
	return false
}

// Temperature maps the creativity level to a sampling temperature hint.
func (c Creativity) Temperature() float64 {
	switch c {
	case CreativityLow:
		return 0.3
	case CreativityHigh:
		return 0.9
	default:
		return 0.7
	}
}

// TrendDepth controls how many trends the harvesting stage asks for.
type TrendDepth string

const (
	DepthShallow  TrendDepth = "shallow"
	DepthStandard TrendDepth = "standard"
	DepthDeep     TrendDepth = "deep"
)

// Valid reports whether d is a known trend depth.
func (d TrendDepth) Valid() bool {
	switch d {
	case DepthShallow, DepthStandard, DepthDeep:
		return true
	}
	return false
}

// TrendCount is the number of trends requested for the depth.
func (d TrendDepth) TrendCount() int {
	switch d {
	case DepthShallow:
		return 3
	case DepthDeep:
		return 8
	default:
		return 5
	}
}

// Flags toggle optional pipeline behaviour.
type Flags struct {
	IncludeLiveData bool `json:"include_live_data"`
}

// Request is the input of one campaign run.
type Request struct {
	Topic       string            `json:"topic"`
	Brand       string            `json:"brand"`
	Budget      float64           `json:"budget"`
	Region      string            `json:"region"`
	Creativity  Creativity        `json:"creativity"`
	TrendDepth  TrendDepth        `json:"trend_depth"`
	Flags       Flags             `json:"flags"`
	BrandValues []string          `json:"brand_values,omitempty"`
	Audience    map[string]string `json:"audience,omitempty"`
}

// WithDefaults fills optional enum fields left empty by the caller.
func (r Request) WithDefaults() Request {
	if r.Creativity == "" {
		r.Creativity = CreativityMedium
	}
	if r.TrendDepth == "" {
		r.TrendDepth = DepthStandard
	}
	if r.Region == "" {
		r.Region = "global"
	}
	return r
}

// Clone returns a deep copy so the orchestrator can hold an immutable request.
func (r Request) Clone() Request {
	c := r
	if r.BrandValues != nil {
		c.BrandValues = append([]string(nil), r.BrandValues...)
	}
	if r.Audience != nil {
		c.Audience = make(map[string]string, len(r.Audience))
		for k, v := range r.Audience {
			c.Audience[k] = v
		}
	}
	return c
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for a malformed request before any stage runs.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid campaign request: " + strings.Join(parts, "; ")
}

// Validate checks every field and reports all failures at once.
// Empty enum fields are accepted; WithDefaults fills them.
func (r Request) Validate() error {
	var fields []FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(r.Topic) == "" {
		add("topic", "must not be empty")
	}
	if strings.TrimSpace(r.Brand) == "" {
		add("brand", "must not be empty")
	}
	if math.IsNaN(r.Budget) || math.IsInf(r.Budget, 0) {
		add("budget", "must be a finite number")
	} else if r.Budget < 0 {
		add("budget", "must be non-negative, got %g", r.Budget)
	}
	if r.Creativity != "" && !r.Creativity.Valid() {
		add("creativity", "unknown level %q", r.Creativity)
	}
	if r.TrendDepth != "" && !r.TrendDepth.Valid() {
		add("trend_depth", "unknown depth %q", r.TrendDepth)
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
