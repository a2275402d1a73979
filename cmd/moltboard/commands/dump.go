package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
)

var dumpOutput string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write a full backup of the board to a file",
	Long: `Capture the legacy lists and every current-schema thread with its
replies into a single JSON document. The dump includes moderation IPs;
treat the file as sensitive.`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "moltboard-dump.json", "Output file path")
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	printer.Step("Dumping board state...\n")
	dump, err := store.DumpEverything(context.Background(), cfg.BoardIDs())
	if err != nil {
		return printer.Error("Dump failed", err.Error(), nil)
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return printer.Error("Failed to encode dump", err.Error(), nil)
	}
	if err := os.WriteFile(dumpOutput, data, 0600); err != nil {
		return printer.Error("Failed to write dump", err.Error(), nil)
	}
	printer.Success("Wrote %d threads to %s\n", len(dump.V2Threads), dumpOutput)
	return nil
}
