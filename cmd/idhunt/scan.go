package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/idhunt/internal/config"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [username]",
		Short: "Look up one username on the builtin sources",
		Long: `Scan looks up a single username on the builtin sources (the GitHub API
and the profile pages of GitLab, Keybase, Twitch and a few others) and
prints what each source reports.

Use 'idhunt hunt' for several seeds, WhatsMyName lists or the Sherlock
manifest.

Examples:
  # Scan a username
  idhunt scan torvalds

  # Scan in strict mode and show ambiguous matches
  idhunt scan --strict -a torvalds

  # Follow handles found in the GitHub profile
  idhunt scan --pivot torvalds

  # Output JSON dossier
  idhunt scan --json torvalds`,
		Args: cobra.ExactArgs(1),
		RunE: runScanCmd,
	}

	addAllFlags(cmd)

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	builtinOnly(cfg)
	cfg.Usernames = args

	return startHunt(cmd, cfg)
}

// builtinOnly restricts a run to the builtin sources, whatever the
// configuration file selects.
func builtinOnly(cfg *config.Config) {
	cfg.UseBuiltin = true
	cfg.SiteListPath = ""
	cfg.EmailListPath = ""
	cfg.UseSherlock = false
	cfg.SherlockPath = ""
	cfg.Categories = nil
}
