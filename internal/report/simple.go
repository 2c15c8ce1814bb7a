package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs a plain text report for terminals.
type SimpleWriter struct {
	baseWriter

	// verbose lists every finding instead of only the category totals.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists every finding.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeArtifacts(&sb, report)
	w.writeSummary(&sb, report)
	if w.verbose {
		w.writeFindings(&sb, report)
	}

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *RunReport) {
	rs := report.Status
	fmt.Fprintf(sb, "Request:    %s\n", rs.RequestID)
	fmt.Fprintf(sb, "Work Unit:  %s\n", rs.WorkUnitID)
	fmt.Fprintf(sb, "SPK:        %s\n", rs.SPK)
	fmt.Fprintf(sb, "Status:     %s\n", rs.Status)
	if rs.Notes != "" {
		fmt.Fprintf(sb, "Notes:      %s\n", rs.Notes)
	}
	fmt.Fprintf(sb, "Updated:    %s\n\n", rs.UpdatedAt.Format(timeLayout))
}

func (w *SimpleWriter) writeArtifacts(sb *strings.Builder, report *RunReport) {
	if len(report.Details) == 0 {
		return
	}
	section(sb, "ARTIFACTS")
	for _, d := range report.Details {
		fmt.Fprintf(sb, "  %-10s %s\n", d.Status, d.Artifact)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *RunReport) {
	section(sb, "FINDINGS")
	for _, c := range report.Categories {
		fmt.Fprintf(sb, "  %-24s %6d  (%d story points)\n", categoryTitle(c.Name), c.Count, c.StoryPoints)
	}
	fmt.Fprintf(sb, "  %-24s %6d  (%d story points)\n\n", "TOTAL", len(report.Findings), report.StoryPoints)
}

func (w *SimpleWriter) writeFindings(sb *strings.Builder, report *RunReport) {
	for _, c := range report.Categories {
		fmt.Fprintf(sb, "[%s]\n", categoryTitle(c.Name))
		for _, f := range report.FindingsIn(c.Name) {
			fmt.Fprintf(sb, "  * %s (%s)\n", f.Title, location(f))
		}
		sb.WriteString("\n")
	}
}
