package screening

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/talentsignal/sourcing-cli/internal/model"
)

// Weights controls how the five sub-scores combine into the aggregate
// match score. Values are relative; Aggregate normalizes by their sum.
type Weights struct {
	Skills     float64 `yaml:"skills"`
	Experience float64 `yaml:"experience"`
	Industry   float64 `yaml:"industry"`
	Title      float64 `yaml:"title"`
	Bonus      float64 `yaml:"bonus"`
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{
		Skills:     0.35,
		Experience: 0.25,
		Title:      0.20,
		Industry:   0.10,
		Bonus:      0.10,
	}
}

// LoadWeights reads a weights YAML file. Missing keys keep their default.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	data, err := os.ReadFile(path)
	if err != nil {
		return w, eris.Wrapf(err, "screening: read weights %s", path)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, eris.Wrapf(err, "screening: parse weights %s", path)
	}
	if w.sum() <= 0 {
		return DefaultWeights(), eris.Errorf("screening: weights in %s sum to zero", path)
	}
	return w, nil
}

func (w Weights) sum() float64 {
	return w.Skills + w.Experience + w.Industry + w.Title + w.Bonus
}

// Aggregate computes the weighted match score from the sub-scores.
func (w Weights) Aggregate(sb *model.ScoreBreakdown) float64 {
	total := w.sum()
	if total <= 0 {
		return 0
	}
	weighted := sb.SkillsScore*w.Skills +
		sb.ExperienceScore*w.Experience +
		sb.IndustryScore*w.Industry +
		sb.TitleScore*w.Title +
		sb.BonusScore*w.Bonus
	return weighted / total
}
