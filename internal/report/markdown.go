package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/scanpipe/internal/model"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// MarkdownWriter outputs reports in Markdown, suitable for attaching to a
// migration ticket.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeArtifacts(md, report)
	w.writeSummary(md, report)
	w.writeFindings(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *RunReport) {
	rs := report.Status

	md.H1("Scan Report")
	md.PlainText("")

	notes := rs.Notes
	if notes == "" {
		notes = "-"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Request", "`" + rs.RequestID.String() + "`"},
			{"Work Unit", rs.WorkUnitID},
			{"SPK", rs.SPK},
			{"Status", rs.Status},
			{"Notes", notes},
			{"Started", rs.CreatedAt.Format(timeLayout)},
			{"Updated", rs.UpdatedAt.Format(timeLayout)},
		},
	})
	md.PlainText("")

	switch rs.Status {
	case model.StatusCompleted:
		md.Tip("The scan completed.")
	case model.StatusError:
		md.Cautionf("The scan failed: %s", notes)
	default:
		md.Note(fmt.Sprintf("The scan is still running (%s). Findings may be incomplete.", rs.Status))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeArtifacts(md *markdown.Markdown, report *RunReport) {
	md.H2("Artifacts")
	md.PlainText("")

	if len(report.Details) == 0 {
		md.PlainText("No artifacts were processed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Details))
	for i, d := range report.Details {
		rows[i] = []string{"`" + d.Artifact + "`", d.Status, d.UpdatedAt.Format(timeLayout)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Artifact", "Status", "Updated"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *RunReport) {
	md.H2("Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Categories)+1)
	for _, c := range report.Categories {
		rows = append(rows, []string{categoryTitle(c.Name), strconv.Itoa(c.Count), strconv.Itoa(c.StoryPoints)})
	}
	rows = append(rows, []string{
		"**Total**",
		"**" + strconv.Itoa(len(report.Findings)) + "**",
		"**" + strconv.Itoa(report.StoryPoints) + "**",
	})
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Findings", "Story Points"},
		Rows:   rows,
	})
	md.PlainText("")

	if report.HasFindings() {
		w.writePieChart(md, report)
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *RunReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Findings by Category"),
		piechart.WithShowData(true),
	)
	for _, c := range report.Categories {
		chart.LabelAndIntValue(categoryTitle(c.Name), uint64(c.Count))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, report *RunReport) {
	md.H2("Findings")
	md.PlainText("")

	if !report.HasFindings() {
		md.PlainText("No findings were loaded.")
		md.PlainText("")
		return
	}

	for _, c := range report.Categories {
		md.PlainText("### " + categoryTitle(c.Name))
		md.PlainText("")

		findings := report.FindingsIn(c.Name)
		rows := make([][]string, len(findings))
		for i, f := range findings {
			rows[i] = []string{
				truncateString(f.Title, 60),
				f.FileKey,
				truncateString(location(f), 50),
				strconv.Itoa(f.StoryPoints),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Title", "Artifact", "Location", "Story Points"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by scanpipe*")
}

func location(f model.Finding) string {
	path := f.FilePath
	if path == "" {
		path = f.FileName
	}
	if path == "" {
		return "-"
	}
	if f.Line > 0 {
		return path + ":" + strconv.Itoa(f.Line)
	}
	return path
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
