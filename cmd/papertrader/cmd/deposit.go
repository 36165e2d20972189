package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Add cash to the account",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)
}

func runDeposit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[0], err)
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	book, err := e.loadBook(ctx)
	if err != nil {
		return err
	}
	if err := book.Deposit(amount); err != nil {
		return err
	}
	if err := e.saveBook(ctx, book); err != nil {
		return err
	}

	fmt.Printf("Deposited %.2f, cash is now %.2f\n", amount, book.Cash())
	return nil
}
