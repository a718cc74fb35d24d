// Package detector decides when a static probe of a posting page is not
// enough and the page has to be rendered in a browser.
package detector

import (
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

// Promotion reasons reported alongside a positive decision.
const (
	ReasonEmptyBody   = "empty_body"
	ReasonScriptHeavy = "script_heavy"
	ReasonSPAMarker   = "spa_marker"
	ReasonThinText    = "thin_text"
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	MinTextLength       int
}

// NewHeuristic creates a new detector. Zero values pick the defaults.
func NewHeuristic(bodyThreshold, minText int) *Heuristic {
	if bodyThreshold == 0 {
		bodyThreshold = 2048
	}
	if minText == 0 {
		minText = 200
	}
	return &Heuristic{BodyLengthThreshold: bodyThreshold, MinTextLength: minText}
}

var spaMarkers = []string{
	"__next",
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"ng-version",
	"data-server-rendered",
}

// ShouldPromote decides whether a headless render is required and why.
func (h *Heuristic) ShouldPromote(probe jobs.Snapshot) (bool, string) {
	if probe.StatusCode != 0 && probe.StatusCode != 200 {
		return false, ""
	}
	body := probe.HTML
	if strings.TrimSpace(body) == "" {
		return true, ReasonEmptyBody
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true, ReasonScriptHeavy
	}
	if utf8.RuneCountInString(strings.TrimSpace(probe.Text)) < h.MinTextLength {
		for _, marker := range spaMarkers {
			if strings.Contains(body, marker) {
				return true, ReasonSPAMarker
			}
		}
		return true, ReasonThinText
	}
	return false, ""
}

func scriptDensityHigh(body string) bool {
	lower := strings.ToLower(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			// Script tag never closes; count the rest.
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
