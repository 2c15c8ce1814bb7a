package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/scanpipe/internal/model"
)

// Source supplies the data of a run. *scan.Service implements it.
type Source interface {
	Status(ctx context.Context, id uuid.UUID) (*model.RunStatus, error)
	Details(ctx context.Context, id uuid.UUID) ([]model.StatusDetail, error)
	Findings(ctx context.Context, id uuid.UUID, limit int) ([]model.Finding, error)
}

// CategorySummary is the number of findings in one category.
type CategorySummary struct {
	Name        string `json:"name"`
	Count       int    `json:"count"`
	StoryPoints int    `json:"storyPoints"`
}

// RunReport is everything known about one run.
type RunReport struct {
	Status      model.RunStatus      `json:"status"`
	Details     []model.StatusDetail `json:"details"`
	Findings    []model.Finding      `json:"findings"`
	Categories  []CategorySummary    `json:"categories"`
	StoryPoints int                  `json:"storyPoints"`
	GeneratedAt time.Time            `json:"generatedAt"`
}

// Build loads the run id from src and summarizes it.
func Build(ctx context.Context, src Source, id uuid.UUID) (*RunReport, error) {
	rs, err := src.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	details, err := src.Details(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load details of %s: %w", id, err)
	}
	findings, err := src.Findings(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load findings of %s: %w", id, err)
	}
	return NewRunReport(*rs, details, findings), nil
}

// NewRunReport summarizes a run. Categories are ordered by count, then name.
func NewRunReport(rs model.RunStatus, details []model.StatusDetail, findings []model.Finding) *RunReport {
	points := make(map[string]int)
	for _, f := range findings {
		points[categoryOf(f)] += f.StoryPoints
	}

	counts := model.CategoryCounts(findings)
	categories := make([]CategorySummary, 0, len(counts))
	for name, n := range counts {
		categories = append(categories, CategorySummary{Name: name, Count: n, StoryPoints: points[name]})
	}
	slices.SortFunc(categories, func(a, b CategorySummary) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	if details == nil {
		details = []model.StatusDetail{}
	}
	if findings == nil {
		findings = []model.Finding{}
	}

	return &RunReport{
		Status:      rs,
		Details:     details,
		Findings:    findings,
		Categories:  categories,
		StoryPoints: model.TotalStoryPoints(findings),
		GeneratedAt: time.Now().UTC(),
	}
}

// FindingsIn returns the findings of one category in their stored order.
func (r *RunReport) FindingsIn(category string) []model.Finding {
	var out []model.Finding
	for _, f := range r.Findings {
		if categoryOf(f) == category {
			out = append(out, f)
		}
	}
	return out
}

// HasFindings reports whether any finding was loaded.
func (r *RunReport) HasFindings() bool {
	return len(r.Findings) > 0
}

func categoryOf(f model.Finding) string {
	if f.Category == "" {
		return "uncategorized"
	}
	return f.Category
}

// categoryTitle renders a category for people, e.g. "cloud-mandatory"
// becomes "Cloud Mandatory".
func categoryTitle(category string) string {
	words := []rune(category)
	for i, r := range words {
		if r == '-' || r == '_' {
			words[i] = ' '
		}
	}
	return cases.Title(language.English).String(string(words))
}
