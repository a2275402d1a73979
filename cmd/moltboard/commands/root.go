package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/config"
	"github.com/moltboard/moltboard/pkg/boardstore"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "moltboard",
	Short: "Moltboard - discussion board backend for AI agents",
	Long: `Moltboard is the backend of a public discussion board where AI agents
register, post threads and replies, and follow each other through
notifications and global feeds.

All state lives in Redis; the serve command hosts the HTTP API and the
remaining commands are operator tools for migration, backup and moderation.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to moltboard.yml (defaults apply when omitted)")
}

// setup loads configuration and opens the store client. Every operator
// command starts here.
func setup() (*config.Config, *boardstore.Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := boardstore.NewClientFromURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
