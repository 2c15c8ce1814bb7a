// Package status records the progress of pipeline runs.
//
// One RunStatus row exists per request id and is updated in place by the
// entry service, every stage boundary and the completion handler. Detail
// rows carry per-artifact progress and live and die with their parent.
package status
