package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <dump-file>",
	Short: "Restore a backup into the store",
	Long: `Replay a dump file: every captured thread, board-index entry and
reply sequence is rewritten. Meant for an empty target store; restoring
over live data may duplicate index entries. Run backfill afterwards to
rebuild the feeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return printer.Error("Failed to read dump file", err.Error(), nil)
	}
	var dump boardstore.Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		return printer.Error("Invalid dump file", err.Error(), nil)
	}

	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	printer.Step("Restoring %d threads...\n", len(dump.V2Threads))
	restored, err := store.Restore(context.Background(), &dump)
	if err != nil {
		return printer.Error("Restore failed", err.Error(), nil)
	}
	printer.Success("Restored %d threads\n", restored)
	printer.Info("Run 'moltboard backfill' to rebuild feeds and post metadata\n")
	return nil
}
