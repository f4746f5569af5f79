// ABOUTME: Tests for prompt normalization, cache keys and JSON extraction
// ABOUTME: Covers fenced, prose-wrapped and malformed model output

package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_Normalizes(t *testing.T) {
	a := CacheKey("  Write   a HEADLINE\n for shoes ", "json")
	b := CacheKey("Write a HEADLINE for shoes", "json")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, b, CacheKey("write a headline for shoes", "json"), "case is part of the key")

	assert.NotEqual(t, a, CacheKey("write a headline for shoes", ""), "schema is part of the key")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a": 1}`, `{"a":1}`},
		{"array", ` [1, 2] `, `[1,2]`},
		{"fenced", "```json\n{\"a\": [1]}\n```", `{"a":[1]}`},
		{"prose around", "Sure! Here it is: {\"ok\": true} Hope that helps.", `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractJSON_Invalid(t *testing.T) {
	for _, input := range []string{"no json here", `{"a": }`, "}{"} {
		_, err := ExtractJSON(input)
		assert.Error(t, err, input)
	}
}
