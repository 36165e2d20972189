package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent trades, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of trades to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	trades, err := e.repo.FindRecentTrades(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return nil
	}

	fmt.Printf("%-20s %-12s %-5s %14s %14s %14s %14s\n",
		"EXECUTED", "SYMBOL", "SIDE", "QUANTITY", "PRICE", "NOTIONAL", "REALIZED P&L")
	for _, t := range trades {
		fmt.Printf("%-20s %-12s %-5s %14.6f %14.2f %14.2f %+14.2f\n",
			t.ExecutedAt.Format("2006-01-02 15:04:05"), t.Symbol, t.Side, t.Quantity, t.Price, t.Notional, t.RealizedPnL)
	}
	return nil
}
