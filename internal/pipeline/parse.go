package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

// rawPayload is the directory's profile document shape. Unknown fields
// are ignored so upstream schema additions don't break parsing.
type rawPayload struct {
	FullName   string `json:"full_name"`
	Name       string `json:"name"` // older payloads
	Headline   string `json:"headline"`
	Location   string `json:"location"`
	Email      string `json:"email"`
	Experience []struct {
		Title     string `json:"title"`
		Company   string `json:"company"`
		Industry  string `json:"industry"`
		StartYear int    `json:"start_year"`
		EndYear   int    `json:"end_year"`
		Summary   string `json:"summary"`
	} `json:"experience"`
	Education []struct {
		School string `json:"school"`
		Degree string `json:"degree"`
		Field  string `json:"field"`
		Year   int    `json:"year"`
	} `json:"education"`
	Skills []string `json:"skills"`
}

var skillCaser = cases.Lower(language.Und)

// parseBatch turns one batch of raw payloads into candidate profiles.
// Payloads that fail to decode are logged and skipped rather than
// failing the batch; the directory occasionally serves malformed rows.
func (p *Pipeline) parseBatch(ctx context.Context, job *model.SourcingJob, batch int) (int, error) {
	raws, err := p.store.ListRawProfiles(ctx, job.ID, batch)
	if err != nil {
		return 0, err
	}

	parsed := make([]model.CandidateProfile, 0, len(raws))
	for _, raw := range raws {
		profile, err := parseProfile(raw)
		if err != nil {
			zap.L().Warn("pipeline: skipping malformed profile",
				zap.String("job_id", job.ID),
				zap.String("profile_url", raw.ProfileURL),
				zap.Error(err),
			)
			continue
		}
		parsed = append(parsed, *profile)
	}

	if err := p.store.SaveParsedProfiles(ctx, job.ID, batch, parsed); err != nil {
		return 0, err
	}
	return len(parsed), nil
}

func parseProfile(raw model.RawProfile) (*model.CandidateProfile, error) {
	var payload rawPayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, err
	}

	name := payload.FullName
	if name == "" {
		name = payload.Name
	}

	profile := &model.CandidateProfile{
		ProfileURL: raw.ProfileURL,
		FullName:   strings.TrimSpace(name),
		Headline:   strings.TrimSpace(payload.Headline),
		Location:   strings.TrimSpace(payload.Location),
		Email:      strings.TrimSpace(payload.Email),
		Skills:     normalizeSkills(payload.Skills),
		ScrapedAt:  raw.FetchedAt,
	}

	for _, e := range payload.Experience {
		profile.Experience = append(profile.Experience, model.Experience{
			Title:     strings.TrimSpace(e.Title),
			Company:   strings.TrimSpace(e.Company),
			Industry:  strings.TrimSpace(e.Industry),
			StartYear: e.StartYear,
			EndYear:   e.EndYear,
			Summary:   e.Summary,
		})
	}
	for _, e := range payload.Education {
		profile.Education = append(profile.Education, model.Education{
			School: strings.TrimSpace(e.School),
			Degree: strings.TrimSpace(e.Degree),
			Field:  strings.TrimSpace(e.Field),
			Year:   e.Year,
		})
	}
	return profile, nil
}

// normalizeSkills lowercases, trims and de-duplicates skill keywords so
// they compare cleanly against the job filters.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(skillCaser.String(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
