package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dayLayout = "2006-01-02"

// newLatestCmd crawls yesterday in the source timezone.
func newLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Crawl yesterday's postings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Crawler().RunLatest(cmd.Context())
			if err != nil {
				return fmt.Errorf("latest crawl: %w", err)
			}
			appInstance.Logger().Info("latest crawl finished",
				zap.String("date", summary.Date.Format(dayLayout)),
				zap.Int("pages", summary.Pages),
				zap.Int("cases_created", summary.CasesCreated),
				zap.Int("cases_existing", summary.CasesExisting),
			)
			return nil
		},
	}
}

// newBetweenCmd crawls every day in [FROM, TO).
func newBetweenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "between FROM TO",
		Short: "Crawl every posting day from FROM up to but not including TO (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			from, err := parseDay(args[0], appInstance.Location())
			if err != nil {
				return err
			}
			to, err := parseDay(args[1], appInstance.Location())
			if err != nil {
				return err
			}

			summary, err := appInstance.Crawler().RunBetween(cmd.Context(), from, to)
			if err != nil {
				return fmt.Errorf("range crawl: %w", err)
			}
			logger := appInstance.Logger()
			for _, d := range summary.Failed() {
				logger.Warn("date failed", zap.String("date", d.Date.Format(dayLayout)), zap.Error(d.Err))
			}
			logger.Info("range crawl finished",
				zap.String("from", args[0]),
				zap.String("to", args[1]),
				zap.Int("dates", len(summary.Dates)),
				zap.Int("failed", len(summary.Failed())),
				zap.Int("cases_created", summary.CasesCreated()),
			)
			return nil
		},
	}
}

func parseDay(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dayLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD: %w", raw, err)
	}
	return t, nil
}
