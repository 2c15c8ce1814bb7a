// Package scan is the entry point of pipeline runs.
//
// Start assigns the request id, writes the "Initiated" row and runs the
// pipeline asynchronously. When the run ends the service writes
// "Completed" or "Error". Shutdown cancels runs in flight; they still end
// with an "Error" row naming the cause.
package scan
