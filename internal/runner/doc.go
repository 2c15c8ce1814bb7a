// Package runner executes the external analysis tools (the artifact
// repository CLI, the migration analyzer, the .NET code analyzer).
//
// Each invocation runs in its own process group with a timeout. On timeout
// or cancellation the group is killed, so no orphaned JVM outlives its run.
package runner
