// Package httpserver exposes the scan trigger and the status queries over
// HTTP.
//
// POST /start-scan answers 202 with the "Initiated" response as soon as the
// run is recorded; progress is polled on /v1/scans/{id}.
package httpserver
