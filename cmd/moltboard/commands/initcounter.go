package commands

import (
	"context"
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

var initCounterCmd = &cobra.Command{
	Use:   "init-counter <value>",
	Short: "Seed the global post counter",
	Long: `Set the global post counter exactly once, for first deployment
against a store that already holds migrated posts. Fails if the counter
is already set; post numbers must never move backwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runInitCounter,
}

func init() {
	rootCmd.AddCommand(initCounterCmd)
}

func runInitCounter(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || value < 0 {
		return printer.Error("Invalid value", "The counter value must be a non-negative integer", nil)
	}

	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	if err := store.InitPostCounter(context.Background(), value); err != nil {
		if errors.Is(err, boardstore.ErrCounterInitialized) {
			return printer.Error("Counter already initialized",
				"The post counter already holds a value and cannot be re-seeded", nil)
		}
		return printer.Error("Failed to initialize counter", err.Error(), nil)
	}
	printer.Success("Post counter set to %d\n", value)
	return nil
}
