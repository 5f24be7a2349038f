package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gofast-worker server:<host>:<port>",
	Short: "Poll a gofast coordinator for jobs and run them",
	Long: `Poll a gofast coordinator for jobs until it answers with null.

Each job is written to the stdin of the --exec command; whatever the
command prints on stdout is posted back as the result. The coordinator
passes its own address as the last argument of the worker start command.

Example:
  gofast-worker --exec "/root/worker/process.sh" server:203.0.113.10:8080`,
	Version:      Version,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runWorker,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"gofast-worker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().String("exec", "", "Command run once per job (required)")
	rootCmd.Flags().String("host", "", "Address reported to the coordinator (default: detected)")
	rootCmd.Flags().Duration("timeout", worker.FetchTimeoutFromEnv(worker.DefaultFetchTimeout),
		"Job fetch timeout (default from "+worker.FetchTimeoutEnv+" when set)")
	rootCmd.Flags().Bool("remote-log", false, "Ship log records to the coordinator's /log endpoint")
	rootCmd.Flags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	_ = rootCmd.MarkFlagRequired("exec")
}

func runWorker(cmd *cobra.Command, args []string) error {
	execLine, _ := cmd.Flags().GetString("exec")
	host, _ := cmd.Flags().GetString("host")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	remoteLog, _ := cmd.Flags().GetBool("remote-log")
	level, _ := cmd.Flags().GetString("log-level")

	server, err := worker.ParseServerArg(args[0])
	if err != nil {
		return err
	}
	baseURL := "http://" + server

	// JSON on stdout is picked up by the coordinator through the SSH session
	var output io.Writer = os.Stdout
	if remoteLog {
		remote := log.NewRemoteWriter(baseURL + "/log")
		defer remote.Close()
		output = io.MultiWriter(os.Stdout, remote)
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: true, Output: output})
	logger := log.WithComponent("worker")

	if host == "" {
		host, err = worker.LocalAddress(server)
		if err != nil {
			logger.Warn().Err(err).Msg("Could not detect local address, continuing without it")
		}
	}

	handler, err := worker.NewExecHandler(execLine)
	if err != nil {
		return err
	}

	client := worker.NewClient(baseURL, timeout)
	client.WorkerHost = host

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	loop := worker.NewLoop(client, handler)
	if err := loop.Run(ctx); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	logger.Info().
		Int("jobs", loop.Handled()).
		Dur("elapsed", time.Since(start)).
		Msg("Worker finished")
	return nil
}
