package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdpower/fleetlog-go/internal/cache"
	"github.com/sdpower/fleetlog-go/internal/output"
	"github.com/sdpower/fleetlog-go/internal/types"
)

func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the incremental scan index",
	}
	cmd.AddCommand(newCacheShowCommand(), newCacheClearCommand())
	return cmd
}

func newCacheShowCommand() *cobra.Command {
	var (
		outDir  string
		box     string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the indexed files of one box, or of every box",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices := []string{box}
			if box == "" {
				var err error
				if devices, err = cache.DevicesWithIndex(outDir); err != nil {
					return err
				}
				if len(devices) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No cache index found.")
					return nil
				}
			}

			formatter := output.NewTableWriterFormatter(noColor)
			for _, device := range devices {
				idx, err := cache.LoadIndex(cache.IndexPath(outDir, device))
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), formatter.FormatCacheIndex(device, idx.Paths(), idx.Signatures, len(idx.Processed)))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory of earlier runs")
	cmd.Flags().StringVar(&box, "box", "", "Box identifier (default: every indexed box)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newCacheClearCommand() *cobra.Command {
	var (
		outDir string
		box    string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the index of a box so its next scan parses every file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if box == "" && !all {
				return types.ValidationError{Field: "box", Message: "name a box or pass --all"}
			}

			devices := []string{box}
			if all {
				var err error
				if devices, err = cache.DevicesWithIndex(outDir); err != nil {
					return err
				}
			}
			for _, device := range devices {
				if err := cache.RemoveIndex(outDir, device); err != nil {
					return fmt.Errorf("clearing index of %s: %w", device, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache index of %s\n", device)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory of earlier runs")
	cmd.Flags().StringVar(&box, "box", "", "Box identifier")
	cmd.Flags().BoolVar(&all, "all", false, "Clear the index of every box")
	cmd.MarkFlagRequired("out")
	return cmd
}
