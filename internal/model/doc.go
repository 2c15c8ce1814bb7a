// Package model defines the data passed between the scan service components.
//
// ScanRequest is the immutable input of a run. ItemResult and StageOutput are
// the transient values flowing from stage to stage. RunStatus and
// StatusDetail are the persisted progress rows, and Finding is what analysis
// stages load into durable storage.
//
// The types live in their own package so that pipeline, stages, status and
// httpserver can share them without import cycles.
package model
