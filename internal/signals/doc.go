// Package signals fuses several independent, unreliable external data feeds
// into one Snapshot without overrunning a deadline.
//
// Every source is fetched concurrently (capped by MaxParallel) under its own
// timeout, and the whole aggregation is bounded by an aggregate deadline that
// may be shorter than the sum of the per-source timeouts. Sources that have
// not answered by then are cancelled and marked failed. A failing source
// never affects the others, and an aggregation in which nothing succeeds
// still returns a (possibly empty) Snapshot rather than an error.
package signals
