package screening

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

const (
	formatModel     = "claude-haiku-4-5-20251001"
	scoreModel      = "claude-sonnet-4-5-20250929"
	formatMaxTokens = 1024
	scoreMaxTokens  = 1024
)

const formatSystemPrompt = `You extract structured recruiting filters from job descriptions.
Respond with a single JSON object and nothing else, using these keys:
- skills: array of required skill keywords, lowercase
- nice_to_have: array of optional skill keywords, lowercase
- titles: array of matching job titles, lowercase
- seniority: one of "junior", "mid", "senior", "staff", "executive", or ""
- locations: array of locations, empty if not constrained
- industries: array of industries, empty if not constrained
- min_years: minimum years of experience as an integer, 0 if unspecified
- remote_only: boolean`

const scoreSystemPrompt = `You evaluate how well a candidate profile matches recruiting filters.
Score each dimension from 0 to 100. Respond with a single JSON object and
nothing else, using these keys:
- skills_score: coverage of the required skills
- experience_score: years and relevance of experience
- industry_score: overlap with the target industries
- title_score: how close current/past titles are to the target titles
- bonus_score: nice-to-have skills and standout signals
- matched_skills: array of required skills the candidate has
- missing_skills: array of required skills the candidate lacks
- bonus_skills: array of nice-to-have skills the candidate has`

// Option configures the screener.
type Option func(*screener)

// WithWeights overrides the score aggregation weights.
func WithWeights(w Weights) Option {
	return func(s *screener) {
		s.weights = w
	}
}

// WithModels overrides the models used for formatting and scoring.
func WithModels(format, score string) Option {
	return func(s *screener) {
		if format != "" {
			s.formatModel = format
		}
		if score != "" {
			s.scoreModel = score
		}
	}
}

type screener struct {
	messenger   Messenger
	weights     Weights
	formatModel string
	scoreModel  string
}

// New creates a screening client on top of a Messenger.
func New(messenger Messenger, opts ...Option) Client {
	s := &screener{
		messenger:   messenger,
		weights:     DefaultWeights(),
		formatModel: formatModel,
		scoreModel:  scoreModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *screener) FormatRequirements(ctx context.Context, rawText string) (*model.JobFilters, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, eris.New("screening: empty job description")
	}

	resp, err := s.messenger.CreateMessage(ctx, MessageRequest{
		Model:     s.formatModel,
		MaxTokens: formatMaxTokens,
		System:    formatSystemPrompt,
		Prompt:    fmt.Sprintf("Job description:\n%s", rawText),
	})
	if err != nil {
		return nil, err
	}

	var filters model.JobFilters
	if err := unmarshalResponse(resp.Text, &filters); err != nil {
		return nil, eris.Wrap(err, "screening: parse filters")
	}
	if filters.IsZero() {
		return nil, eris.New("screening: no usable filters extracted")
	}
	return &filters, nil
}

func (s *screener) ScoreProfile(ctx context.Context, profile *model.CandidateProfile, filters *model.JobFilters) (*model.ScoreBreakdown, error) {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return nil, eris.Wrap(err, "screening: marshal profile")
	}
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, eris.Wrap(err, "screening: marshal filters")
	}

	resp, err := s.messenger.CreateMessage(ctx, MessageRequest{
		Model:     s.scoreModel,
		MaxTokens: scoreMaxTokens,
		System:    scoreSystemPrompt,
		Prompt:    fmt.Sprintf("Filters:\n%s\n\nCandidate profile:\n%s", filtersJSON, profileJSON),
	})
	if err != nil {
		return nil, err
	}

	var sb model.ScoreBreakdown
	if err := unmarshalResponse(resp.Text, &sb); err != nil {
		return nil, eris.Wrap(err, "screening: parse score")
	}

	sb.SkillsScore = clamp(sb.SkillsScore)
	sb.ExperienceScore = clamp(sb.ExperienceScore)
	sb.IndustryScore = clamp(sb.IndustryScore)
	sb.TitleScore = clamp(sb.TitleScore)
	sb.BonusScore = clamp(sb.BonusScore)
	sb.MatchScore = s.weights.Aggregate(&sb)
	return &sb, nil
}

// unmarshalResponse finds the JSON object in the response text (it may
// have surrounding prose) and unmarshals it.
func unmarshalResponse(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return eris.Errorf("no JSON in response: %s", text)
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
