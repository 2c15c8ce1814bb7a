package findings

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/scanpipe/internal/model"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// Column headers of the analyzer's CSV export.
const (
	ColRuleID            = "Rule Id"
	ColIssue             = "Issue"
	ColCategory          = "Category"
	ColTitle             = "Title"
	ColDescription       = "Description"
	ColLinks             = "Links"
	ColApplication       = "Application"
	ColFileName          = "File Name"
	ColFilePath          = "File Path"
	ColLine              = "Line"
	ColStoryPoints       = "Story points"
	ColParentApplication = "Parent Application"
)

// requiredColumns must be present in the header row.
var requiredColumns = []string{ColRuleID, ColCategory, ColTitle}

// header maps normalized column names to their index.
type header map[string]int

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}

func newHeader(row []string) (header, error) {
	h := make(header, len(row))
	for i, name := range row {
		h[normalize(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := h[normalize(col)]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}
	return h, nil
}

// get returns the trimmed cell of column name, or "" when the column or
// cell is missing.
func (h header) get(row []string, name string) string {
	i, ok := h[normalize(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// getInt parses an integer cell. Empty cells are zero.
func (h header) getInt(row []string, name string) (int, error) {
	v := h.get(row, name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	return n, nil
}

// Parse reads a findings CSV and calls fn for every data row, in order.
// Each finding is a copy of base with the row's columns filled in.
// It returns the number of rows passed to fn.
func Parse(r io.Reader, base model.Finding, fn func(model.Finding) error) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}
	h, err := newHeader(first)
	if err != nil {
		return 0, err
	}

	count := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read row %d: %w", count+2, err)
		}
		if isBlank(row) {
			continue
		}

		f, err := h.finding(row, base)
		if err != nil {
			return count, fmt.Errorf("row %d: %w", count+2, err)
		}
		if err := fn(f); err != nil {
			return count, err
		}
		count++
	}
}

func (h header) finding(row []string, base model.Finding) (model.Finding, error) {
	f := base
	f.RuleID = h.get(row, ColRuleID)
	f.Issue = h.get(row, ColIssue)
	f.Category = h.get(row, ColCategory)
	f.Title = h.get(row, ColTitle)
	f.Description = h.get(row, ColDescription)
	f.Links = h.get(row, ColLinks)
	f.Application = h.get(row, ColApplication)
	f.FileName = h.get(row, ColFileName)
	f.FilePath = h.get(row, ColFilePath)
	if p := h.get(row, ColParentApplication); p != "" {
		f.ParentApplication = p
	}

	var err error
	if f.Line, err = h.getInt(row, ColLine); err != nil {
		return f, err
	}
	if f.StoryPoints, err = h.getInt(row, ColStoryPoints); err != nil {
		return f, err
	}
	return f, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
