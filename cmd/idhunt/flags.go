package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/model"
)

// addSchedulingFlags registers the probe scheduling flags.
func addSchedulingFlags(cmd *cobra.Command) {
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each probe")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Maximum number of probes in flight")
	cmd.Flags().Float64("rate-limit", 0,
		"Maximum number of probes started per second (0 disables the limit)")
	cmd.Flags().Int("rate-burst", 1,
		"Burst size of the rate limiter")
}

// addNetworkFlags registers the proxy and Tor flags.
func addNetworkFlags(cmd *cobra.Command) {
	cmd.Flags().String("proxy", "",
		"Route probes through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Start an embedded Tor daemon and route probes through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().String("user-agent", "",
		"User-Agent sent to sources that do not set their own")
}

// addHeuristicFlags registers the strict mode and NSFW flags.
func addHeuristicFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("strict", "s", false,
		"Re-score matches and demote or exclude low-confidence ones")
	cmd.Flags().Bool("nsfw", false,
		"Count results from NSFW sources (excluded by default)")
	cmd.Flags().Float64("demote-threshold", 0,
		"Strict mode: demote found matches scoring below this to ambiguous")
	cmd.Flags().Float64("exclude-threshold", 0,
		"Strict mode: exclude ambiguous matches scoring below this")
	cmd.Flags().StringToString("weight", nil,
		"Override the reliability weight of a source (e.g., --weight github=0.9)")
	cmd.Flags().Bool("pivot", false,
		"Probe usernames discovered in seed profiles (one level deep)")
}

// addSourceFlags registers the manifest flags.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-builtin", false,
		"Do not probe the builtin sources")
	cmd.Flags().String("site-list", "",
		"WhatsMyName username list (wmn-data.json)")
	cmd.Flags().String("email-list", "",
		"WhatsMyName-style email list")
	cmd.Flags().Bool("sherlock", false,
		"Probe the Sherlock manifest (downloaded to the cache directory)")
	cmd.Flags().String("sherlock-file", "",
		"Local Sherlock data.json (implies --sherlock)")
	cmd.Flags().StringSlice("category", nil,
		"Only probe site-list sources of this category (repeatable)")
	cmd.Flags().String("cache-dir", "",
		"Directory of downloaded manifests (default: XDG cache directory)")
}

// addAIFlags registers the AI analyst flags.
func addAIFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("ai", false,
		"Ask the AI analyst for a summary (API key in "+config.EnvAIAPIKey+")")
	cmd.Flags().String("ai-model", "",
		"Model used by the AI analyst")
	cmd.Flags().String("ai-base-url", "",
		"Base URL of the OpenAI-compatible API")
	cmd.Flags().Bool("json-raw", false,
		"Keep the raw AI response in JSON reports")
}

// addOutputFlags registers the report flags.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON dossier (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().BoolP("show-ambiguous", "a", false,
		"List ambiguous matches in the terminal table")
}

// addRunFlags registers the history, metrics and cancellation flags.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("save", true,
		"Store the dossier in the run history")
	cmd.Flags().String("db-dir", "",
		"Directory of the run history database (default: XDG data directory)")
	cmd.Flags().String("metrics-file", "",
		"Write probe metrics in Prometheus text format to this file")
	cmd.Flags().Bool("partial", false,
		"On interrupt, keep and export the evidence collected so far")
}

// addAllFlags registers every run flag group.
func addAllFlags(cmd *cobra.Command) {
	addSchedulingFlags(cmd)
	addNetworkFlags(cmd)
	addHeuristicFlags(cmd)
	addAIFlags(cmd)
	addOutputFlags(cmd)
	addRunFlags(cmd)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the config file path from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// buildConfig creates a Config from defaults, the configuration file, the
// environment and finally the flags the user actually set.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.SaveToDB = true
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.ConfigFilePath = getConfigFlag(cmd)

	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use defaults if no file found.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.Apply(f)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	cfg.ApplyEnv(os.Getenv)

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every flag set on the command line into cfg.
// Flags the command does not define are skipped.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if err := errors.Join(
		setDuration(cmd, "timeout", &cfg.Timeout),
		setInt(cmd, "concurrency", &cfg.Concurrency),
		setFloat(cmd, "rate-limit", &cfg.RateLimit),
		setInt(cmd, "rate-burst", &cfg.RateBurst),

		setString(cmd, "proxy", &cfg.ProxyAddress),
		setBool(cmd, "tor", &cfg.UseTor),
		setDuration(cmd, "tor-timeout", &cfg.TorStartupTimeout),
		setString(cmd, "user-agent", &cfg.UserAgent),

		setBool(cmd, "strict", &cfg.Strict),
		setFloat(cmd, "demote-threshold", &cfg.DemoteThreshold),
		setFloat(cmd, "exclude-threshold", &cfg.ExcludeThreshold),
		setBool(cmd, "pivot", &cfg.Pivot),
		setBool(cmd, "derive-local-part", &cfg.DeriveLocalPart),

		setString(cmd, "site-list", &cfg.SiteListPath),
		setString(cmd, "email-list", &cfg.EmailListPath),
		setBool(cmd, "sherlock", &cfg.UseSherlock),
		setString(cmd, "sherlock-file", &cfg.SherlockPath),
		setStrings(cmd, "category", &cfg.Categories),
		setString(cmd, "cache-dir", &cfg.CacheDir),

		setBool(cmd, "ai", &cfg.AI),
		setString(cmd, "ai-model", &cfg.AIModel),
		setString(cmd, "ai-base-url", &cfg.AIBaseURL),
		setBool(cmd, "json-raw", &cfg.KeepRawAnalysis),

		setBool(cmd, "json", &cfg.JSONReport),
		setBool(cmd, "markdown", &cfg.MarkdownReport),
		setString(cmd, "output", &cfg.ReportFile),
		setBool(cmd, "show-ambiguous", &cfg.ShowAmbiguous),

		setBool(cmd, "save", &cfg.SaveToDB),
		setString(cmd, "db-dir", &cfg.DBDir),
		setString(cmd, "metrics-file", &cfg.MetricsFile),
		setBool(cmd, "partial", &cfg.PartialResults),
	); err != nil {
		return err
	}

	if changed(cmd, "no-builtin") {
		noBuiltin, err := cmd.Flags().GetBool("no-builtin")
		if err != nil {
			return err
		}
		cfg.UseBuiltin = !noBuiltin
	}

	if changed(cmd, "nsfw") {
		allow, err := cmd.Flags().GetBool("nsfw")
		if err != nil {
			return err
		}
		cfg.NSFW = model.NSFWExclude
		if allow {
			cfg.NSFW = model.NSFWAllow
		}
	}

	if cfg.SherlockPath != "" {
		cfg.UseSherlock = true
	}

	if changed(cmd, "weight") {
		raw, err := cmd.Flags().GetStringToString("weight")
		if err != nil {
			return err
		}
		if cfg.Weights == nil {
			cfg.Weights = make(map[string]float64, len(raw))
		}
		for name, value := range raw {
			w, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%s", config.ErrInvalidWeight, name, value)
			}
			cfg.Weights[name] = w
		}
	}
	return nil
}

// changed reports whether the command defines name and the user set it.
func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func setString(cmd *cobra.Command, name string, dst *string) error {
	if !changed(cmd, name) {
		return nil
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setStrings(cmd *cobra.Command, name string, dst *[]string) error {
	if !changed(cmd, name) {
		return nil
	}
	v, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setBool(cmd *cobra.Command, name string, dst *bool) error {
	if !changed(cmd, name) {
		return nil
	}
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setInt(cmd *cobra.Command, name string, dst *int) error {
	if !changed(cmd, name) {
		return nil
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setFloat(cmd *cobra.Command, name string, dst *float64) error {
	if !changed(cmd, name) {
		return nil
	}
	v, err := cmd.Flags().GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func setDuration(cmd *cobra.Command, name string, dst *time.Duration) error {
	if !changed(cmd, name) {
		return nil
	}
	v, err := cmd.Flags().GetDuration(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
