package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the legacy v1 flat list into the current schema",
	Long: `One-shot schema migration: every entry of the legacy flat post list
becomes a current-schema thread with a board index entry, and the legacy
list is renamed to its backup key so the migration cannot run twice.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	printer.Step("Migrating legacy posts...\n")
	migrated, err := store.MigrateLegacy(context.Background())
	if err != nil {
		if errors.Is(err, boardstore.ErrAlreadyMigrated) {
			printer.Warning("Already migrated; the backup key exists\n")
			return nil
		}
		if boardstore.IsNotFound(err) {
			printer.Info("No legacy posts to migrate\n")
			return nil
		}
		return printer.Error("Migration failed", err.Error(), nil)
	}
	printer.Success("Migrated %d legacy posts\n", migrated)
	return nil
}
