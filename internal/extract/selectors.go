package extract

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Selectors lists candidate CSS selectors per field, highest priority first.
type Selectors struct {
	Title       []string `mapstructure:"title"`
	Company     []string `mapstructure:"company"`
	Location    []string `mapstructure:"location"`
	Salary      []string `mapstructure:"salary"`
	Experience  []string `mapstructure:"experience"`
	Description []string `mapstructure:"description"`
}

// DefaultSelectors covers the common applicant-tracking layouts followed by
// generic class-name patterns.
func DefaultSelectors() Selectors {
	return Selectors{
		Title: []string{
			"h1.job-title",
			`h1[data-automation-id="jobTitle"]`,
			".job-details__title",
			`[class*="job-title"]`,
			`[class*="jobTitle"]`,
			"h1",
		},
		Company: []string{
			".company-name",
			`[data-automation-id="companyName"]`,
			".job-details__company",
			`[class*="company"]`,
		},
		Location: []string{
			".job-location",
			`[data-automation-id="location"]`,
			".job-details__location",
			`[class*="location"]`,
		},
		Salary: []string{
			".salary-range",
			`[data-automation-id="salaryInfo"]`,
			".job-details__salary",
			`[class*="salary"]`,
			`[class*="compensation"]`,
		},
		Experience: []string{
			".experience-level",
			`[data-automation-id="experienceLevel"]`,
			".job-details__experience",
			`[class*="experience"]`,
			`[class*="seniority"]`,
		},
		Description: []string{
			".job-description-content",
			`[data-automation-id="jobDescription"]`,
			".job-details__description",
			"#job-description",
			`[class*="description"]`,
		},
	}
}

// WithDefaults fills every empty candidate list from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	def := DefaultSelectors()
	pick := func(have, fallback []string) []string {
		if len(have) == 0 {
			return fallback
		}
		return have
	}
	return Selectors{
		Title:       pick(s.Title, def.Title),
		Company:     pick(s.Company, def.Company),
		Location:    pick(s.Location, def.Location),
		Salary:      pick(s.Salary, def.Salary),
		Experience:  pick(s.Experience, def.Experience),
		Description: pick(s.Description, def.Description),
	}
}

// Validate compiles every selector and reports the first one that does not parse.
func (s Selectors) Validate() error {
	groups := map[string][]string{
		"title":       s.Title,
		"company":     s.Company,
		"location":    s.Location,
		"salary":      s.Salary,
		"experience":  s.Experience,
		"description": s.Description,
	}
	for field, list := range groups {
		for _, sel := range list {
			if strings.TrimSpace(sel) == "" {
				return fmt.Errorf("selectors.%s contains an empty selector", field)
			}
			if _, err := cascadia.Compile(sel); err != nil {
				return fmt.Errorf("selectors.%s: invalid selector %q: %w", field, sel, err)
			}
		}
	}
	return nil
}
