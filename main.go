// Command jobscraper scrapes job postings from the command line or over HTTP.
package main

import (
	"github.com/joho/godotenv"

	"github.com/JakeFAU/job-scraper/cmd"
)

func main() {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()
	cmd.Execute()
}
