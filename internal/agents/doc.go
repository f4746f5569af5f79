// Package agents defines the six content stages of a campaign run.
//
//	trends ─▶ narrative ─▶ copy ─▶ hooks ─▶ sequence ─▶ insights
//	   └──────────────────────▲              ▲
//	             narrative ───┴──────────────┘
//
// Every stage renders an embedded prompt template, calls the generation
// gateway with a per-stage schema identifier and decodes the JSON reply into
// its artifact type. A reply that does not decode or lacks required fields is
// an invalid response, which the orchestrator answers with the stage's local
// placeholder. The narrative stage also reads and updates the similarity
// index so later runs can reuse earlier trend and brand analogies.
package agents
