package domain

import "strings"

// Standard is one catalog section: a regulatory standard and its questions.
type Standard struct {
	Key         string     `json:"key"`
	Section     string     `json:"section"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Framework   string     `json:"framework"`
	FileName    string     `json:"file_name"`
	Items       []Question `json:"items"`
}

// StandardKey derives the lookup key of a section name ("IAS 1" -> "IAS_1").
func StandardKey(section string) string {
	return strings.ReplaceAll(strings.TrimSpace(section), " ", "_")
}

// StandardInfo is the list view of a standard.
type StandardInfo struct {
	Key         string `json:"key"`
	Section     string `json:"section"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Framework   string `json:"framework"`
	ItemCount   int    `json:"item_count"`
	FileName    string `json:"file_name"`
}

func (s Standard) Info() StandardInfo {
	return StandardInfo{
		Key:         s.Key,
		Section:     s.Section,
		Title:       s.Title,
		Description: s.Description,
		Framework:   s.Framework,
		ItemCount:   len(s.Items),
		FileName:    s.FileName,
	}
}

// CatalogItem is a question found by a catalog search, tagged with its standard.
type CatalogItem struct {
	Standard string `json:"standard"`
	Question
}

type CatalogSummary struct {
	TotalStandards int            `json:"total_standards"`
	TotalQuestions int            `json:"total_questions"`
	Frameworks     []string       `json:"frameworks"`
	Standards      []StandardInfo `json:"standards"`
}
