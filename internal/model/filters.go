package model

import "strings"

// JobFilters is the structured form of a job's free-text requirements,
// produced by the requirement-formatting collaborator and consumed by
// discovery and scoring.
type JobFilters struct {
	Skills       []string `json:"skills"`
	NiceToHave   []string `json:"nice_to_have,omitempty"`
	Titles       []string `json:"titles,omitempty"`
	Seniority    string   `json:"seniority,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	Industries   []string `json:"industries,omitempty"`
	MinYears     int      `json:"min_years,omitempty"`
	RemoteOnly   bool     `json:"remote_only,omitempty"`
}

// IsZero reports whether no usable filter was extracted.
func (f *JobFilters) IsZero() bool {
	return f == nil || (len(f.Skills) == 0 && len(f.Titles) == 0 && f.Seniority == "")
}

// Query renders the filters as a directory search query string.
func (f *JobFilters) Query() string {
	var parts []string
	if f.Seniority != "" {
		parts = append(parts, f.Seniority)
	}
	parts = append(parts, f.Titles...)
	parts = append(parts, f.Skills...)
	return strings.Join(parts, " ")
}
