// Package main provides the entry point for the scanpipe CLI.
//
// scanpipe runs artifact scan pipelines: it locates the artifacts of a work
// unit, fetches them, runs the analysis tool of the workload's technology
// and loads the findings, recording every step in the status store.
//
// Usage:
//
//	scanpipe serve
//	scanpipe scan --technology JAVA --work-unit AIT1 --spk SPK1
//	scanpipe status <request-id>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
