// Package reminder owns the in-memory one-shot reminder jobs.
//
// # Overview
//
// A Scheduler instance holds the job table and a dispatcher goroutine that
// fires jobs at their absolute trigger instants. Every reminder is
// one-shot: a job is registered, then either fires or is cancelled, and in
// both cases leaves the table for good. Nothing survives a restart.
//
// Scheduling a request always registers a MAIN job at now+duration and,
// when a lead time is given and leaves a positive remainder, a HEADSUP
// sibling that fires earlier. The two share one creation epoch, which both
// correlates them and seeds the "#123" display suffix.
//
// # Concurrency
//
// Schedule, List, Cancel and CancelAll are safe to call concurrently with
// the dispatcher; the job table is guarded by a single mutex shared by the
// API and the firing loop. Delivery is fire-and-forget: the notifier runs
// on its own goroutine and a failed delivery is logged, never retried.
//
// The clock is injected (github.com/benbjohnson/clock) so tests drive a
// mock clock instead of sleeping.
package reminder
