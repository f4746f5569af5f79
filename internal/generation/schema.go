// ABOUTME: Prompt normalization, cache key derivation and structured response extraction
// ABOUTME: Keys are blake2b digests of the normalized prompt plus the schema hint

package generation

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// NormalizePrompt trims the prompt and collapses whitespace runs so prompts
// differing only in spacing share a cache entry. Case is significant.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(prompt), " ")
}

// CacheKey derives the cache identity of a prompt and schema hint.
func CacheKey(prompt, schema string) string {
	sum := blake2b.Sum256([]byte(NormalizePrompt(prompt) + "\x00" + schema))
	return hex.EncodeToString(sum[:])
}

var errNoJSON = errors.New("no JSON object or array found")

// ExtractJSON pulls one JSON object or array out of model output. Markdown
// code fences and surrounding prose are tolerated.
func ExtractJSON(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)

	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, errNoJSON
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return nil, errNoJSON
	}

	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil, errors.New("malformed JSON payload")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, candidate); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
