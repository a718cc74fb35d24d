package extract

import (
	"github.com/PuerkitoBio/goquery"
)

// Fields holds the selector-pass values. Empty strings mean unresolved.
type Fields struct {
	Title       string
	Company     string
	Location    string
	Salary      string
	Experience  string
	Description string
}

// Structured runs every field's candidate selectors against doc. For each
// field the first element with non-empty text wins.
func Structured(doc *goquery.Document, sel Selectors) Fields {
	return Fields{
		Title:       firstMatch(doc, sel.Title, inlineText),
		Company:     firstMatch(doc, sel.Company, inlineText),
		Location:    firstMatch(doc, sel.Location, inlineText),
		Salary:      firstMatch(doc, sel.Salary, inlineText),
		Experience:  firstMatch(doc, sel.Experience, inlineText),
		Description: firstMatch(doc, sel.Description, normalizeText),
	}
}

func firstMatch(doc *goquery.Document, candidates []string, clean func(string) string) string {
	for _, candidate := range candidates {
		var found string
		doc.Find(candidate).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if text := clean(selectionText(s)); text != "" {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}
