package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"papertrader/internal/domain"
)

var tradeCmd = &cobra.Command{
	Use:   "trade <buy|sell> <symbol> <quantity>",
	Short: "Execute a market buy or sell",
	Long: `Execute a paper trade for a watchlist symbol at the current feed price.

Buys debit cash and raise the position's volume-weighted average cost.
Sells credit cash, realize P&L against the average cost and close the
position when the full quantity is sold.

Examples:
  papertrader trade buy BTC/USD 0.05
  papertrader trade sell ETH/USD 1.5 --price 3100`,
	Args: cobra.ExactArgs(3),
	RunE: runTrade,
}

var tradePrice float64

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.Flags().Float64VarP(&tradePrice, "price", "p", 0, "execute at this price instead of the feed price")
}

func runTrade(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	side := domain.OrderSide(strings.ToUpper(args[0]))
	if !side.IsValid() {
		return fmt.Errorf("side must be buy or sell, got %q", args[0])
	}
	symbol := args[1]
	quantity, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("invalid quantity %q: %w", args[2], err)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	exchangeSym, ok := e.cfg.ExchangeFor(symbol)
	if !ok {
		return fmt.Errorf("symbol %q is not on the watchlist (%s)", symbol, strings.Join(e.cfg.DisplaySymbols(), ", "))
	}

	price := tradePrice
	if price == 0 {
		src, err := e.priceSource()
		if err != nil {
			return fmt.Errorf("price source: %w", err)
		}
		price, err = src.GetPrice(ctx, exchangeSym)
		if err != nil {
			return fmt.Errorf("resolve price for %s: %w", symbol, err)
		}
	}

	book, err := e.loadBook(ctx)
	if err != nil {
		return err
	}

	trade, err := book.ExecuteTrade(symbol, side, quantity, price)
	if err != nil {
		return err
	}
	if err := e.repo.AppendTrade(ctx, trade); err != nil {
		return fmt.Errorf("persist trade: %w", err)
	}
	if err := e.saveBook(ctx, book); err != nil {
		return err
	}

	fmt.Printf("%s %s %.6f %s @ %.2f (notional %.2f)\n", trade.ID, trade.Side, trade.Quantity, trade.Symbol, trade.Price, trade.Notional)
	if trade.Side == domain.Sell {
		fmt.Printf("Realized P&L: %+.2f\n", trade.RealizedPnL)
	}
	fmt.Printf("Cash: %.2f\n", book.Cash())
	return nil
}
