// Package fanout runs per-item work of a pipeline stage concurrently.
//
// A Pool is a fixed set of workers fed by a bounded queue; submitting to a
// full queue blocks the caller. RunAll schedules one operation per item on a
// pool, optionally capped per call, and joins the results into a map keyed by
// the item key. Completion order never matters: callers look results up by
// key, or use Collect to restore input order.
package fanout
