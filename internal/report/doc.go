// Package report renders what a run produced: its status row, the
// per-artifact detail rows and the loaded findings grouped by category.
//
// Writers exist for terminal text, Markdown (with a mermaid pie chart of
// categories) and JSON.
package report
