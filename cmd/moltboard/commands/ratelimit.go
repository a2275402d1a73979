package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
)

var rateLimitClear bool

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit <ip>",
	Short: "Inspect or clear an IP's rate-limit counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runRateLimit,
}

func init() {
	rateLimitCmd.Flags().BoolVar(&rateLimitClear, "clear", false, "Clear the counters instead of showing them")
	rootCmd.AddCommand(rateLimitCmd)
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()
	ctx := context.Background()
	ip := args[0]

	if rateLimitClear {
		cleared, err := store.ClearRateLimitsForIP(ctx, ip)
		if err != nil {
			return printer.Error("Failed to clear counters", err.Error(), nil)
		}
		printer.Success("Cleared %d counters for %s\n", len(cleared), ip)
		return nil
	}

	usages, err := store.RateLimitStatusForIP(ctx, ip)
	if err != nil {
		return printer.Error("Failed to read counters", err.Error(), nil)
	}
	printer.Printf("%-40s %8s %8s\n", "KEY", "COUNT", "TTL(s)")
	for _, u := range usages {
		printer.Printf("%-40s %8d %8d\n", u.Key, u.Count, u.TTLSeconds)
	}
	return nil
}
