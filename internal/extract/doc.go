// Package extract turns a rendered posting page into a jobs.JobRecord.
//
// Extraction is layered. Structured runs prioritized CSS selectors over the
// DOM; Heuristic mines the visible text with ordered per-field rules; Compose
// merges the two, falling back to the heuristics whenever the selector pass
// leaves the title, the company or the description unresolved.
package extract
