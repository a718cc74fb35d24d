// Package jobs defines the job-posting record produced by the scraper, the
// rendered page snapshot handed to extraction, and the ports (renderer,
// stores, publisher) the scraping pipeline and service layer depend on.
package jobs
