package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nao1215/idhunt/internal/config"
	"github.com/nao1215/idhunt/internal/database"
	"github.com/nao1215/idhunt/internal/transport"
)

// doctorProbeURL is requested to verify outbound connectivity.
const doctorProbeURL = "https://github.com"

// Check results shown by doctor.
const (
	checkOK   = "ok"
	checkWarn = "warn"
	checkFail = "fail"
)

// checkResult is one row of the doctor table.
type checkResult struct {
	Name   string
	Status string
	Detail string
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage, network and AI settings",
		Long: `Doctor verifies the environment idhunt runs in:

- the configuration file is found and valid
- the run history database can be opened
- the cache directory is writable
- outbound HTTPS works, directly or through --proxy
- the AI analyst has an API key

Examples:
  # Run every check
  idhunt doctor

  # Check a SOCKS5 proxy
  idhunt doctor --proxy 127.0.0.1:9050

  # Skip the network checks
  idhunt doctor --offline`,
		Args: cobra.NoArgs,
		RunE: runDoctorCmd,
	}

	cmd.Flags().String("proxy", "",
		"Check connectivity through a SOCKS5 proxy")
	cmd.Flags().Bool("offline", false,
		"Skip the network checks")
	cmd.Flags().String("db-dir", "",
		"Directory of the run history database (default: XDG data directory)")
	cmd.Flags().String("cache-dir", "",
		"Directory of downloaded manifests (default: XDG cache directory)")
	cmd.Flags().DurationP("timeout", "t", 10*time.Second,
		"Timeout of the network checks")

	return cmd
}

// runDoctorCmd executes the doctor command.
func runDoctorCmd(cmd *cobra.Command, _ []string) error {
	offline, err := cmd.Flags().GetBool("offline")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var results []checkResult
	cfg, err := buildConfig(cmd)
	if err != nil {
		results = append(results, checkResult{"config", checkFail, err.Error()})
		cfg = config.NewConfig()
	} else {
		results = append(results, checkConfig(cfg))
	}

	results = append(results, checkDatabase(ctx, cfg.DBDir), checkCacheDir(cfg.CacheDir))
	if !offline {
		results = append(results, checkNetwork(ctx, cfg.ProxyAddress, timeout)...)
	}
	results = append(results, checkAI(cfg))

	failed := renderChecks(cmd.OutOrStdout(), results)
	if failed > 0 {
		return fmt.Errorf("%d checks failed", failed)
	}
	return nil
}

func checkConfig(cfg *config.Config) checkResult {
	detail := "no configuration file, using defaults"
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		detail = path
	}
	if err := cfg.ValidateSettings(); err != nil {
		return checkResult{"config", checkFail, err.Error()}
	}
	return checkResult{"config", checkOK, detail}
}

func checkDatabase(ctx context.Context, dbDir string) checkResult {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return checkResult{"database", checkFail, err.Error()}
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		return checkResult{"database", checkFail, err.Error()}
	}
	return checkResult{"database", checkOK, fmt.Sprintf("%s (%d runs)", db.Path(), len(runs))}
}

func checkCacheDir(dir string) checkResult {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return checkResult{"cache", checkFail, err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return checkResult{"cache", checkFail, err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	detail := dir
	if info, err := os.Stat(filepath.Join(dir, sherlockCacheName)); err == nil {
		detail += fmt.Sprintf(" (Sherlock manifest from %s)", info.ModTime().Local().Format(historyDateLayout))
	}
	return checkResult{"cache", checkOK, detail}
}

func checkNetwork(ctx context.Context, proxyAddress string, timeout time.Duration) []checkResult {
	client, err := transport.NewClient(transport.Options{ProxyAddress: proxyAddress, Timeout: timeout})
	if err != nil {
		return []checkResult{{"proxy", checkFail, err.Error()}}
	}
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var results []checkResult
	if client.Proxied() {
		status := client.CheckConnection(ctx)
		if status != transport.ProxyStatusOK {
			return append(results, checkResult{"proxy", checkFail, fmt.Sprintf("%s: %s", client.ProxyAddress(), status)})
		}
		results = append(results, checkResult{"proxy", checkOK, client.ProxyAddress()})
	}

	code, err := client.CheckReachable(ctx, doctorProbeURL)
	switch {
	case err != nil:
		results = append(results, checkResult{"network", checkFail, err.Error()})
	case code >= 500:
		results = append(results, checkResult{"network", checkWarn, doctorProbeURL + " answered " + strconv.Itoa(code)})
	default:
		results = append(results, checkResult{"network", checkOK, doctorProbeURL + " answered " + strconv.Itoa(code)})
	}
	return results
}

func checkAI(cfg *config.Config) checkResult {
	if cfg.AIAPIKey == "" {
		return checkResult{"ai", checkWarn, config.EnvAIAPIKey + " is not set; --ai is unavailable"}
	}
	return checkResult{"ai", checkOK, fmt.Sprintf("%s at %s", cfg.AIModel, cfg.AIBaseURL)}
}

// renderChecks prints the results and returns the number of failures.
func renderChecks(out io.Writer, results []checkResult) int {
	tw := newTable(out)
	tw.AppendHeader(table.Row{"Check", "Status", "Detail"})
	failed := 0
	for _, r := range results {
		if r.Status == checkFail {
			failed++
		}
		tw.AppendRow(table.Row{r.Name, r.Status, r.Detail})
	}
	tw.Render()
	return failed
}
