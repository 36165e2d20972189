package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the current account snapshot",
	Long: `Show cash, positions value, total equity and unrealized P&L.

Positions are valued at the current feed price; when a price cannot be
resolved the position falls back to its average cost.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	book, err := e.loadBook(ctx)
	if err != nil {
		return err
	}

	prices := fetchPrices(ctx, e)
	snap := book.Snapshot(prices)

	fmt.Printf("Cash:            %14.2f\n", snap.Cash)
	fmt.Printf("Positions value: %14.2f\n", snap.PositionsValue)
	fmt.Printf("Equity:          %14.2f\n", snap.Equity)
	fmt.Printf("Unrealized P&L:  %+14.2f\n", snap.UnrealizedPnL)
	fmt.Printf("Realized P&L:    %+14.2f\n", book.RealizedPnL())

	positions := book.Positions()
	if len(positions) == 0 {
		fmt.Println("\nNo open positions.")
		return nil
	}

	fmt.Printf("\n%-12s %14s %14s %14s %14s\n", "SYMBOL", "QUANTITY", "AVG COST", "PRICE", "UNREAL P&L")
	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.AvgCost
		}
		fmt.Printf("%-12s %14.6f %14.2f %14.2f %+14.2f\n",
			pos.Symbol, pos.Quantity, pos.AvgCost, price, pos.UnrealizedPnL(price))
	}
	return nil
}

// fetchPrices resolves current prices for the watchlist keyed by display
// symbol. Failures degrade to an empty map; the snapshot then values
// positions at average cost.
func fetchPrices(ctx context.Context, e *env) map[string]float64 {
	src, err := e.priceSource()
	if err != nil {
		e.logger.Warn(ctx, "Price source unavailable, valuing at average cost", map[string]interface{}{"error": err.Error()})
		return nil
	}
	raw, err := src.GetPrices(ctx, e.cfg.ExchangeSymbols())
	if err != nil {
		e.logger.Warn(ctx, "Price lookup failed, valuing at average cost", map[string]interface{}{"error": err.Error()})
		return nil
	}

	out := make(map[string]float64, len(raw))
	for exchangeSym, price := range raw {
		if display, ok := e.cfg.DisplayFor(exchangeSym); ok {
			out[display] = price
		}
	}
	return out
}
