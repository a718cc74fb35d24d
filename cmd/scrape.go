package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/app"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/scraper"
)

type scrapeOutput struct {
	URL    string          `json:"url"`
	OK     bool            `json:"ok"`
	Record *jobs.JobRecord `json:"record,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "scrape URL...",
		Short: "Scrape job postings and print the records as JSON",
		Long: `Scrapes every URL through the batch scraper and prints one JSON array to
stdout, in input order. Failed URLs get placeholder records unless --strict is
set, in which case they carry only the error and the command exits non-zero.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, urls []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if strict {
				cfg.Scraper.FailurePolicy = string(scraper.FailurePropagate)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				if cerr := a.Close(); cerr != nil {
					logger.Warn("close application failed", zap.Error(cerr))
				}
			}()

			results := a.Batch().ScrapeAll(ctx, urls)
			out := make([]scrapeOutput, len(results))
			failures := 0
			for i, res := range results {
				out[i] = scrapeOutput{URL: res.URL, OK: res.OK()}
				if res.Err != nil {
					failures++
					out[i].Error = res.Err.Error()
				}
				if res.OK() || !strict {
					rec := res.Record
					out[i].Record = &rec
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write results: %w", err)
			}
			if strict && failures > 0 {
				return fmt.Errorf("%d of %d urls failed", failures, len(urls))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any URL fails instead of emitting placeholders")
	return cmd
}
