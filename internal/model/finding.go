package model

import (
	"time"

	"github.com/google/uuid"
)

// Finding is one issue reported by an analysis tool for one artifact.
// The field set follows the AllIssues.csv export of the migration analyzer.
type Finding struct {
	ID                int64     `json:"id,omitempty"`
	RequestID         uuid.UUID `json:"requestId"`
	WorkUnitID        string    `json:"workUnitId"`
	SPK               string    `json:"spk"`
	FileKey           string    `json:"fileKey"`
	RuleID            string    `json:"ruleId"`
	Issue             string    `json:"issue"`
	Category          string    `json:"category"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Links             string    `json:"links"`
	Application       string    `json:"application"`
	FileName          string    `json:"fileName"`
	FilePath          string    `json:"filePath"`
	Line              int       `json:"line"`
	StoryPoints       int       `json:"storyPoints"`
	ParentApplication string    `json:"parentApplication"`
	CreatedAt         time.Time `json:"createdAt"`
}

// CategoryCounts groups findings by category.
func CategoryCounts(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		category := f.Category
		if category == "" {
			category = "uncategorized"
		}
		counts[category]++
	}
	return counts
}

// TotalStoryPoints sums the effort estimate of findings.
func TotalStoryPoints(findings []Finding) int {
	total := 0
	for _, f := range findings {
		total += f.StoryPoints
	}
	return total
}
