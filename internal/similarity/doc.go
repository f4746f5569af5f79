// Package similarity stores embedded text with payloads and answers
// k-nearest-neighbor queries by cosine similarity.
//
// Results are sorted by descending score. Scores within 1e-9 of each other
// are ties and keep insertion order, so identical inputs always produce the
// same sequence. An index is process-wide: restore it from a snapshot at
// start-up and persist a snapshot at shutdown.
package similarity
