package model

import "time"

// Identity is a directory entry discovered for a job, before enrichment.
type Identity struct {
	ProfileURL string `json:"profile_url"`
	FullName   string `json:"full_name"`
	Headline   string `json:"headline,omitempty"`
	Location   string `json:"location,omitempty"`
}

// RawProfile is the unparsed payload returned by the directory's profile
// detail endpoint for a single identity.
type RawProfile struct {
	ProfileURL string `json:"profile_url"`
	Payload    []byte `json:"payload"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Experience is one position held by a candidate.
type Experience struct {
	Title     string `json:"title"`
	Company   string `json:"company"`
	Industry  string `json:"industry,omitempty"`
	StartYear int    `json:"start_year,omitempty"`
	EndYear   int    `json:"end_year,omitempty"` // 0 = current
	Summary   string `json:"summary,omitempty"`
}

// Education is one education entry for a candidate.
type Education struct {
	School string `json:"school"`
	Degree string `json:"degree,omitempty"`
	Field  string `json:"field,omitempty"`
	Year   int    `json:"year,omitempty"`
}

// ScoreBreakdown holds the five sub-scores and the weighted aggregate
// produced by the screening collaborator. Scores are 0-100.
type ScoreBreakdown struct {
	SkillsScore     float64  `json:"skills_score"`
	ExperienceScore float64  `json:"experience_score"`
	IndustryScore   float64  `json:"industry_score"`
	TitleScore      float64  `json:"title_score"`
	BonusScore      float64  `json:"bonus_score"`
	MatchScore      float64  `json:"match_score"`
	MatchedSkills   []string `json:"matched_skills,omitempty"`
	MissingSkills   []string `json:"missing_skills,omitempty"`
	BonusSkills     []string `json:"bonus_skills,omitempty"`
}

// CandidateProfile is one discovered, enriched and eventually scored
// person record tied to a job. (job_id, profile_url) is the natural key
// used for de-duplication; the second occurrence of a URL within a job is
// flagged IsDuplicate and excluded from scoring and ranked reads.
type CandidateProfile struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	ProfileURL string `json:"profile_url"`

	FullName string `json:"full_name"`
	Headline string `json:"headline,omitempty"`
	Location string `json:"location,omitempty"`
	Email    string `json:"email,omitempty"`

	Experience []Experience `json:"experience,omitempty"`
	Education  []Education  `json:"education,omitempty"`
	Skills     []string     `json:"skills,omitempty"`

	Scores *ScoreBreakdown `json:"scores,omitempty"`

	IsDuplicate bool `json:"is_duplicate"`
	IsScored    bool `json:"is_scored"`

	BatchNumber int       `json:"batch_number"`
	ScrapedAt   time.Time `json:"scraped_at"`
}

// MatchScore returns the aggregate score, or 0 for unscored candidates.
func (c *CandidateProfile) MatchScore() float64 {
	if c.Scores == nil {
		return 0
	}
	return c.Scores.MatchScore
}
