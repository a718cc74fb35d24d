package extract

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/PuerkitoBio/goquery"
)

// Outcome describes how a record was assembled.
type Outcome struct {
	// Fallback is true when the heuristic extractor contributed to the record.
	Fallback bool
	// Missing lists the fields that triggered the fallback.
	Missing []string
}

// Compose builds the record for snap. Selector matches win; the heuristic
// extractor fills in whenever the title or company stay unresolved or no
// description text exists at all, and in that case it owns the description.
func Compose(snap jobs.Snapshot, sourceURL string, sel Selectors) (jobs.JobRecord, Outcome, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return jobs.JobRecord{}, Outcome{}, fmt.Errorf("parse document: %w", err)
	}

	fields := Structured(doc, sel)
	if fields.Title == "" {
		fields.Title = inlineText(snap.Title)
	}

	text := strings.TrimSpace(snap.Text)
	if text == "" {
		text = VisibleText(doc)
	}
	description := fields.Description
	if description == "" {
		description = text
	}
	if description == "" {
		description = jobs.NoDescription
	} else {
		description = jobs.Truncate(description, jobs.MaxDescriptionLength, jobs.TruncatedMarker)
	}

	var outcome Outcome
	if fields.Title == "" {
		outcome.Missing = append(outcome.Missing, "title")
	}
	if fields.Company == "" {
		outcome.Missing = append(outcome.Missing, "company")
	}
	if description == jobs.NoDescription {
		outcome.Missing = append(outcome.Missing, "description")
	}

	rec := jobs.JobRecord{
		Title:       fields.Title,
		Company:     fields.Company,
		Location:    fields.Location,
		Salary:      fields.Salary,
		Experience:  fields.Experience,
		Description: description,
		SourceURL:   sourceURL,
		Status:      jobs.StatusActive,
	}

	if len(outcome.Missing) > 0 {
		outcome.Fallback = true
		h := Heuristic(text, sourceURL)
		rec.Title = prefer(rec.Title, h.Title)
		rec.Company = prefer(rec.Company, h.Company)
		rec.Location = prefer(rec.Location, h.Location)
		rec.Salary = prefer(rec.Salary, h.Salary)
		rec.Experience = prefer(rec.Experience, h.Experience)
		rec.Description = h.Description
	}

	if IsClosed(text) {
		rec.Status = jobs.StatusClosed
	}
	fillDefaults(&rec)
	return rec, outcome, nil
}

func prefer(structured, heuristic string) string {
	if structured != "" {
		return structured
	}
	return heuristic
}

func fillDefaults(rec *jobs.JobRecord) {
	for _, f := range []*string{&rec.Title, &rec.Company, &rec.Location, &rec.Salary, &rec.Experience} {
		if strings.TrimSpace(*f) == "" {
			*f = jobs.NotAvailable
		}
	}
	if strings.TrimSpace(rec.Description) == "" {
		rec.Description = jobs.NoDescription
	}
}
