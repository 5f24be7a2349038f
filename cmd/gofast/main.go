package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// logFile is the open --log-file, closed after the command finishes
var logFile io.WriteCloser

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gofast",
	Short: "gofast - run jobs on a short-lived fleet of cloud workers",
	Long: `gofast provisions a fleet of cloud instances, configures each one over
SSH, starts a worker process on it and hands out jobs over HTTP until the
job source runs dry. Every worker is destroyed as soon as it has been told
there is no more work.

Workers behind NAT reach the coordinator through a reverse SSH tunnel on an
extra proxy instance, which is removed after the last worker.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"gofast version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write console logs as JSON")
	rootCmd.PersistentFlags().String("log-file", "gofast.log", "Also write JSON logs to this file (empty to disable)")
	rootCmd.PersistentFlags().StringP("config", "c", "gofast.yaml", "Fleet configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	jsonOutput, _ := cmd.Flags().GetBool("log-json")
	path, _ := cmd.Flags().GetString("log-file")

	cfg := log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
		Output:     os.Stderr,
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		cfg.File = f
	}

	log.Init(cfg)
	metrics.SetVersion(Version)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gofast version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
