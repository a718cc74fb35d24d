package extract

import (
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/job-scraper/internal/jobs"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var closurePhrases = []string{
	"job is no longer available",
	"position has been filled",
	"this job has expired",
	"no longer accepting applications",
}

// Job boards whose domain says nothing about the hiring company.
var jobBoards = map[string]bool{
	"indeed":    true,
	"linkedin":  true,
	"glassdoor": true,
}

var (
	titleSpanRe = regexp.MustCompile(`(?is)^(.*?)(?:job description|about the role|responsibilities|qualifications)`)

	companyRe = regexp.MustCompile(
		`(?i:company name|about us|our company|we are)[\s:,-]*` +
			`((?:[A-Z][\w&.'-]*[ \t]+){0,5}?[A-Z][\w&.'-]*,?[ \t]*(?:Inc|LLC|Corp|Ltd)\b\.?)`)

	locationLabelRe = regexp.MustCompile(`(?i)(?:location|office|remote|hybrid):\s*([a-z\s,.-]+(?:\s*\d{5})?)`)
	cityStateRe     = regexp.MustCompile(`\b([A-Z][a-zA-Z.'-]*(?:[ \t]+[A-Z][a-zA-Z.'-]*){0,2}),[ \t]*([A-Z]{2})\b(?:[ \t]+\d{5})?`)

	salaryLabelRe = regexp.MustCompile(
		`(?i)(?:salary|pay|compensation):\s*(\$?\d[\d,.]*k?(?:\s*(?:-|–|to)\s*\$?\d[\d,.]*k?)?(?:\s*per\s*(?:year|hour))?)`)
	salaryShortRe = regexp.MustCompile(`(?i)\b(\d{2,3}k(?:\s*-\s*\d{2,3}k)?(?:\s+per\s+year)?)\b`)

	experienceLabelRe = regexp.MustCompile(
		`(?i)(?:experience|years):\s*(\d+\+?\s*years?|\b(?:junior|mid-level|senior|entry-level|lead)\b)`)

	descriptionAnchors = []*regexp.Regexp{
		regexp.MustCompile(`(?i)job description`),
		regexp.MustCompile(`(?i)responsibilities`),
		regexp.MustCompile(`(?i)qualifications`),
		regexp.MustCompile(`(?i)requirements`),
		regexp.MustCompile(`(?i)what you'll do`),
	}
)

// experienceLevels is scanned in order when no labelled experience exists.
var experienceLevels = []struct {
	keywords []string
	label    string
}{
	{keywords: []string{"senior"}, label: "Senior"},
	{keywords: []string{"mid-level", "intermediate"}, label: "Mid-level"},
	{keywords: []string{"junior", "entry-level"}, label: "Entry-level"},
	{keywords: []string{"lead"}, label: "Lead"},
}

const (
	minTitleLength     = 5
	maxTitleLength     = 100
	maxTitleLines      = 3
	refineThreshold    = 500
	minExcerptLength   = 100
	maxExcerptSections = 5
)

type input struct {
	text      string
	lower     string
	sourceURL string
}

type fieldRule struct {
	name  string
	apply func(in input, rec *jobs.JobRecord)
}

// fieldRules run in order over every open posting. Each rule owns one field.
var fieldRules = []fieldRule{
	{name: "title", apply: func(in input, rec *jobs.JobRecord) { setIf(&rec.Title, Title(in.text)) }},
	{name: "company", apply: func(in input, rec *jobs.JobRecord) { setIf(&rec.Company, Company(in.text, in.sourceURL)) }},
	{name: "location", apply: func(in input, rec *jobs.JobRecord) { setIf(&rec.Location, Location(in.text)) }},
	{name: "salary", apply: func(in input, rec *jobs.JobRecord) { setIf(&rec.Salary, Salary(in.text)) }},
	{name: "experience", apply: func(in input, rec *jobs.JobRecord) { setIf(&rec.Experience, Experience(in.text)) }},
	{name: "description", apply: func(in input, rec *jobs.JobRecord) { rec.Description = Description(in.text) }},
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Heuristic extracts a record from the plain visible text of a posting.
// It never fails: fields it cannot infer keep their defaults.
func Heuristic(rawText, sourceURL string) jobs.JobRecord {
	rec := jobs.NewRecord(sourceURL)
	text := strings.TrimSpace(strings.ReplaceAll(rawText, "\r\n", "\n"))
	if text == "" {
		return rec
	}
	rec.Description = Description(text)
	if IsClosed(text) {
		rec.Status = jobs.StatusClosed
		return rec
	}

	in := input{text: text, lower: strings.ToLower(text), sourceURL: sourceURL}
	for _, rule := range fieldRules {
		rule.apply(in, &rec)
	}
	return rec
}

// IsClosed reports whether text carries one of the "posting closed" phrases.
func IsClosed(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range closurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Title picks up to three title-sized lines preceding the first section
// heading, else the first line when it is title-sized.
func Title(text string) string {
	if m := titleSpanRe.FindStringSubmatch(text); m != nil {
		var picked []string
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			if !titleSized(line) {
				continue
			}
			picked = append(picked, line)
			if len(picked) == maxTitleLines {
				break
			}
		}
		if len(picked) > 0 {
			return strings.Join(picked, " ")
		}
	}
	first, _, _ := strings.Cut(text, "\n")
	first = strings.TrimSpace(first)
	if titleSized(first) {
		return first
	}
	return ""
}

func titleSized(s string) bool {
	n := utf8.RuneCountInString(s)
	return n > minTitleLength && n < maxTitleLength
}

// Company finds a capitalized company name ending in a corporate suffix after
// an introduction phrase, else derives one from the URL's registrable domain.
func Company(text, sourceURL string) string {
	if m := companyRe.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	return companyFromURL(sourceURL)
}

func companyFromURL(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	label := registrableLabel(host)
	if label == "" || jobBoards[label] {
		return ""
	}
	caser := cases.Title(language.English)
	words := strings.Fields(strings.ReplaceAll(label, "-", " "))
	for i, w := range words {
		words[i] = caser.String(w)
	}
	return strings.Join(words, " ")
}

// registrableLabel returns the label directly left of the public suffix,
// e.g. "acme" for jobs.acme.co.uk.
func registrableLabel(host string) string {
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		label, _, _ := strings.Cut(etld1, ".")
		return label
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

// Location reads a labelled location or a "City, ST" pair and annotates
// postings that mention remote work.
func Location(text string) string {
	var loc string
	if m := locationLabelRe.FindStringSubmatch(text); m != nil {
		first, _, _ := strings.Cut(strings.TrimSpace(m[1]), "\n")
		loc = strings.TrimRight(strings.TrimSpace(first), " ,-")
	}
	if loc == "" {
		if m := cityStateRe.FindStringSubmatch(text); m != nil {
			loc = strings.TrimSpace(m[1]) + ", " + m[2]
		}
	}
	if strings.Contains(strings.ToLower(text), "remote") {
		switch {
		case loc == "":
			loc = "Remote"
		case !strings.Contains(strings.ToLower(loc), "remote"):
			loc += " (Remote)"
		}
	}
	return loc
}

// Salary reads a labelled pay range, else a bare "NNk-NNk" figure.
func Salary(text string) string {
	if m := salaryLabelRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimRight(strings.TrimSpace(m[1]), ".,"); v != "" {
			return v
		}
	}
	if m := salaryShortRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// Experience reads a labelled requirement, else the strongest seniority keyword.
func Experience(text string) string {
	if m := experienceLabelRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
	}
	lower := strings.ToLower(text)
	for _, level := range experienceLevels {
		for _, kw := range level.keywords {
			if strings.Contains(lower, kw) {
				return level.label
			}
		}
	}
	return ""
}

// Description returns the capped full text, or for long pages the first few
// paragraphs starting at a recognised section heading.
func Description(text string) string {
	if strings.TrimSpace(text) == "" {
		return jobs.NoDescription
	}
	desc := jobs.TruncateRunes(text, jobs.MaxDescriptionLength) + jobs.FullTextMarker
	if utf8.RuneCountInString(text) <= refineThreshold {
		return desc
	}
	for _, anchor := range descriptionAnchors {
		loc := anchor.FindStringIndex(text)
		if loc == nil {
			continue
		}
		sections := strings.Split(text[loc[0]:], "\n\n")
		if len(sections) > maxExcerptSections {
			sections = sections[:maxExcerptSections]
		}
		excerpt := strings.Join(sections, "\n\n")
		if utf8.RuneCountInString(excerpt) > minExcerptLength {
			return jobs.TruncateRunes(excerpt, jobs.MaxDescriptionLength) + jobs.ParsedExcerptMarker
		}
	}
	return desc
}
