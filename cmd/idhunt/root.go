package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for idhunt.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idhunt",
		Short: "Identity correlation across public sources",
		Long: `idhunt looks up usernames and email addresses on public sites and APIs,
normalizes what every source reports and correlates the evidence into a
single identity aggregate.

Results are printed as a terminal table, a JSON dossier or a Markdown
report. Runs are stored in a local history database so they can be
listed and re-analyzed later.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .idhunt in current or home directory)")

	cmd.AddCommand(NewHuntCmd())
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewScanEmailCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewDoctorCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
