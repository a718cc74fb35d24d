// Package scraper turns posting URLs into job records. PageScraper handles a
// single URL with retries around rendering and extraction; BatchScraper fans a
// list of URLs out to a Scraper under a bounded concurrency cap.
package scraper
