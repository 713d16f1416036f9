package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the fleetlog command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fleetlog",
		Short: "Incremental fleet log aggregation",
		Long: `fleetlog scans per-box log archives, extracts cellular session usage,
content delivery progress, errors and destinations, and rolls them into
per-cycle, per-day, per-box and fleet reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		NewScanCommand(),
		NewCacheCommand(),
	)
	return rootCmd
}
