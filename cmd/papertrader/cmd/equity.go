package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"papertrader/internal/equity"
)

var equityCmd = &cobra.Command{
	Use:   "equity [range]",
	Short: "Print the equity series for a look-back range",
	Long: `Print the persisted equity samples within a named look-back range.

Ranges: ` + strings.Join(equity.Ranges(), ", ") + ` (default "1d").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEquity,
}

func init() {
	rootCmd.AddCommand(equityCmd)
}

func runEquity(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rangeSelector := "1d"
	if len(args) == 1 {
		rangeSelector = args[0]
	}

	since := time.Time{} // "all" reads the entire retained series
	if rangeSelector != equity.RangeAll {
		window, ok := equity.Window(rangeSelector)
		if !ok {
			return fmt.Errorf("unknown range %q, expected one of: %s", rangeSelector, strings.Join(equity.Ranges(), ", "))
		}
		since = time.Now().Add(-window)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	points, err := e.repo.FindEquitySince(ctx, since)
	if err != nil {
		return fmt.Errorf("query equity history: %w", err)
	}
	if len(points) == 0 {
		fmt.Printf("No equity samples within %q.\n", rangeSelector)
		return nil
	}

	for _, p := range points {
		fmt.Printf("%s %14.2f\n", p.At.Format(time.RFC3339), p.Equity)
	}

	first, last := points[0].Equity, points[len(points)-1].Equity
	change := last - first
	pct := 0.0
	if first != 0 {
		pct = change / first * 100
	}
	fmt.Printf("\n%d samples, change %+.2f (%+.2f%%)\n", len(points), change, pct)
	return nil
}
