package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset [initial-cash]",
	Short: "Restart the simulation with a fresh balance",
	Long: `Drop all positions, trade history and equity samples, and restart the
account with the given cash balance (default from INITIAL_CASH).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReset,
}

var resetYes bool

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	initialCash := e.cfg.InitialCash
	if len(args) == 1 {
		initialCash, err = strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid initial cash %q: %w", args[0], err)
		}
	}
	if initialCash < 0 {
		return fmt.Errorf("initial cash cannot be negative")
	}

	if !resetYes {
		fmt.Printf("This drops all positions, trades and equity history. Reset to %.2f? [y/N] ", initialCash)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := e.repo.Reset(ctx, initialCash); err != nil {
		return fmt.Errorf("reset account: %w", err)
	}
	fmt.Printf("Account reset with cash %.2f\n", initialCash)
	return nil
}
