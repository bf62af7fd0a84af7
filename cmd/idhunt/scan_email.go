package main

import (
	"github.com/spf13/cobra"
)

// NewScanEmailCmd creates the scan-email command.
func NewScanEmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan-email [email]",
		Short: "Look up one email address on the builtin sources",
		Long: `Scan-email looks up a single email address on the builtin email sources
(Gravatar) and, with --derive-local-part, the part before "@" as a username on the
builtin username sources. Results for the local part are attributed to
the email.

Examples:
  # Scan an email address
  idhunt scan-email linus@example.com

  # Also try the local part "linus" as a username
  idhunt scan-email -l linus@example.com

  # Add an email list in WhatsMyName format
  idhunt scan-email --email-list emails.json linus@example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runScanEmailCmd,
	}

	cmd.Flags().BoolP("derive-local-part", "l", false,
		"Also probe the local part of the email as a username")
	cmd.Flags().String("email-list", "",
		"WhatsMyName-style email list")
	addAllFlags(cmd)

	return cmd
}

// runScanEmailCmd executes the scan-email command.
func runScanEmailCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	emailList := cfg.EmailListPath
	builtinOnly(cfg)
	if changed(cmd, "email-list") {
		cfg.EmailListPath = emailList
	}
	cfg.Emails = args

	return startHunt(cmd, cfg)
}
