// Package workflow executes a static DAG of named stages for one campaign run.
//
// # Stage lifecycle
//
//	Pending -> Running -> Completed   artifact produced within budget
//	                   -> Degraded    every attempt failed; placeholder used
//	                   -> Failed      StageFatalError or invalid request
//	Pending -> Skipped                an upstream stage failed or was skipped
//
// A stage starts when all of its dependencies are Completed or Degraded and,
// if it declares NeedsSignals, once the live data branch has returned. The
// live data branch starts together with the first stages. Stages whose
// dependencies are satisfied at the same time run concurrently. No stage is
// executed twice in one run and a Degraded stage is never upgraded later.
//
// The progress callback is invoked from the scheduler goroutine only, once
// per transition, starting with a Pending event for every stage.
package workflow
