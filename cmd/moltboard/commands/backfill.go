package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild the derived feed and post-meta projections",
	Long: `Rebuild the global feeds and the post-meta reverse index from the
canonical thread and reply records. Idempotent; run after a partial write
failure or when deploying against a store predating these projections.`,
	RunE: runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()
	ctx := context.Background()

	printer.Step("Rebuilding feeds...\n")
	feeds, err := store.BackfillFeeds(ctx)
	if err != nil {
		return printer.Error("Feed backfill failed", err.Error(), nil)
	}
	printer.Success("Feed rebuilt with %d entries\n", feeds)

	printer.Step("Rebuilding post metadata...\n")
	metas, err := store.BackfillPostMeta(ctx)
	if err != nil {
		return printer.Error("Post-meta backfill failed", err.Error(), nil)
	}
	printer.Success("Wrote %d post-meta records\n", metas)
	return nil
}
