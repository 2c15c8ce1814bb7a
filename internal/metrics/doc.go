// Package metrics exposes Prometheus collectors for pipeline runs, stages,
// fanned-out items and the shared worker pool.
package metrics
