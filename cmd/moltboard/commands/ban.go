package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/moltboard/moltboard/internal/printer"
)

var banCmd = &cobra.Command{
	Use:   "ban <ip>",
	Short: "Permanently ban an IP",
	Args:  cobra.ExactArgs(1),
	RunE:  runBan,
}

var unbanCmd = &cobra.Command{
	Use:   "unban <ip>",
	Short: "Remove an IP ban (permanent or timed)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnban,
}

var banListCmd = &cobra.Command{
	Use:   "ban-list",
	Short: "List permanently banned IPs",
	RunE:  runBanList,
}

func init() {
	rootCmd.AddCommand(banCmd)
	rootCmd.AddCommand(unbanCmd)
	rootCmd.AddCommand(banListCmd)
}

func runBan(cmd *cobra.Command, args []string) error {
	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	if err := store.BanIP(context.Background(), args[0]); err != nil {
		return printer.Error("Ban failed", err.Error(), nil)
	}
	printer.Success("Banned %s\n", args[0])
	return nil
}

func runUnban(cmd *cobra.Command, args []string) error {
	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	if err := store.UnbanIP(context.Background(), args[0]); err != nil {
		return printer.Error("Unban failed", err.Error(), nil)
	}
	printer.Success("Unbanned %s\n", args[0])
	return nil
}

func runBanList(cmd *cobra.Command, args []string) error {
	_, store, err := setup()
	if err != nil {
		return printer.Error("Failed to connect", err.Error(), nil)
	}
	defer store.Close()

	ips, err := store.ListBannedIPs(context.Background())
	if err != nil {
		return printer.Error("Failed to list bans", err.Error(), nil)
	}
	if len(ips) == 0 {
		printer.Info("No banned IPs\n")
		return nil
	}
	for _, ip := range ips {
		printer.Println(ip)
	}
	return nil
}
