package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/gofast/pkg/artifact"
	"github.com/cuemby/gofast/pkg/config"
	"github.com/cuemby/gofast/pkg/dispatch"
	"github.com/cuemby/gofast/pkg/events"
	"github.com/cuemby/gofast/pkg/fleet"
	"github.com/cuemby/gofast/pkg/jobs"
	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
	"github.com/cuemby/gofast/pkg/provider"
	"github.com/cuemby/gofast/pkg/provider/digitalocean"
	"github.com/cuemby/gofast/pkg/provision"
	"github.com/cuemby/gofast/pkg/remote"
	"github.com/cuemby/gofast/pkg/storage"
	"github.com/cuemby/gofast/pkg/tunnel"
	"github.com/cuemby/gofast/pkg/types"
)

// Provider API calls are shared by all chains
const (
	providerRPS   = 5
	providerBurst = 10
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Provision the fleet and serve jobs until none are left",
	Long: `Provision the fleet described by the configuration file, configure and
start every worker, and serve jobs until the job source returns null.

Examples:
  # Serve one job per line of jobs.txt, append results to results.jsonl
  gofast run -c fleet.yaml --jobs jobs.txt --results results.jsonl

  # Without a tunnel, workers connect to the advertised address directly
  gofast run -c fleet.yaml --jobs jobs.txt --advertise 203.0.113.10`,
	RunE: runFleet,
}

func init() {
	runCmd.Flags().String("jobs", "", "Newline-delimited jobs file (default: no jobs, every worker stops on its first poll)")
	runCmd.Flags().String("results", "", "Append results to this file as JSON lines (default: acknowledge and drop)")
	runCmd.Flags().String("advertise", "", "Coordinator address workers connect to when the proxy is disabled")
	runCmd.Flags().String("listen", "", "Dispatch server listen address (default :<port>)")
	runCmd.Flags().Bool("verify-tunnel", true, "Check /live through the proxy before provisioning workers")
	runCmd.Flags().Duration("metrics-interval", 15*time.Second, "Worker gauge refresh interval")
}

func runFleet(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	jobsPath, _ := cmd.Flags().GetString("jobs")
	resultsPath, _ := cmd.Flags().GetString("results")
	advertise, _ := cmd.Flags().GetString("advertise")
	listen, _ := cmd.Flags().GetString("listen")
	verify, _ := cmd.Flags().GetBool("verify-tunnel")
	interval, _ := cmd.Flags().GetDuration("metrics-interval")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.Proxy && advertise == "" {
		return errors.New("--advertise is required when the proxy is disabled")
	}
	if listen == "" {
		listen = ":" + strconv.Itoa(cfg.Port)
	}

	logger := log.WithComponent("gofast")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ssh, err := remote.NewSSHConnector(cfg.Credentials.SSHUser, cfg.Credentials.SSHKeyPath)
	if err != nil {
		return err
	}

	prov := provider.NewLimited(digitalocean.New(cfg.Credentials.Token), providerRPS, providerBurst)

	source, sink, closeJobs, err := openJobs(jobsPath, resultsPath)
	if err != nil {
		return err
	}
	defer closeJobs()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go logEvents(broker.Subscribe())

	opts := []fleet.Option{
		fleet.WithBroker(broker),
		fleet.WithArtifact(artifact.New(cfg.Artifact)),
		fleet.WithLedger(store),
	}
	if cfg.Proxy {
		opts = append(opts, fleet.WithTunnel(newTunnel(cfg, prov, ssh, store, verify)))
	}

	orch := fleet.New(fleetConfig(cfg, advertise), prov, ssh, opts...)

	srv := dispatch.NewServer(
		dispatch.WithJobSource(source),
		dispatch.WithResultSink(sink),
		dispatch.WithShutdownHook(orch),
	)
	if err := srv.Open(listen); err != nil {
		return err
	}

	collector := metrics.NewCollector(orch, interval)
	collector.Start()
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("listen", srv.Addr()).
		Int("concurrency", cfg.Concurrency).
		Bool("proxy", cfg.Proxy).
		Msg("Coordinator started")

	runErr := orch.Run(ctx)
	if n := broker.Dropped(); n > 0 {
		logger.Debug().Int64("dropped", n).Msg("Event subscribers fell behind")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("Dispatch server did not close cleanly")
	}

	if runErr != nil {
		return fmt.Errorf("fleet run failed: %w", runErr)
	}
	logger.Info().Msg("All workers finished")
	return nil
}

func fleetConfig(cfg *types.FleetConfig, advertise string) fleet.Config {
	return fleet.Config{
		Concurrency:        cfg.Concurrency,
		NamePrefix:         cfg.NamePrefix,
		StartCommand:       cfg.StartCommand,
		Setup:              cfg.Setup,
		ArtifactRemotePath: cfg.Artifact.RemotePath,
		Port:               cfg.Port,
		AdvertiseHost:      advertise,
		ConnectAttempts:    cfg.Timeouts.ConnectAttempts,
		ConnectDelay:       cfg.Timeouts.ConnectDelay,
		FetchTimeout:       cfg.Timeouts.FetchTimeout,
		Provision:          provisionConfig(cfg),
	}
}

func provisionConfig(cfg *types.FleetConfig) provision.Config {
	return provision.Config{
		Template:     cfg.Template,
		PollInterval: cfg.Timeouts.PollInterval,
		PollTimeout:  cfg.Timeouts.PollTimeout,
	}
}

func newTunnel(cfg *types.FleetConfig, prov provider.Provider, ssh remote.Connector, ledger storage.Ledger, verify bool) *tunnel.Manager {
	instances := provision.New(prov, provisionConfig(cfg),
		provision.WithLedger(ledger),
		provision.WithRole(storage.RoleProxy),
	)
	dialer := remote.NewDialer(ssh, cfg.Timeouts.ConnectAttempts, cfg.Timeouts.ConnectDelay)

	return tunnel.NewManager(instances, dialer, tunnel.Config{
		Name:   cfg.NamePrefix + "-proxy",
		Port:   cfg.Port,
		Local:  net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port)),
		Verify: verify,
	})
}

func openJobs(jobsPath, resultsPath string) (dispatch.JobSource, dispatch.ResultSink, func(), error) {
	var (
		source  = dispatch.NoJobs
		sink    = dispatch.AckResults
		closers []func() error
	)

	if jobsPath != "" {
		s, err := jobs.OpenLineSource(jobsPath)
		if err != nil {
			return nil, nil, nil, err
		}
		source = s
		closers = append(closers, s.Close)
	}
	if resultsPath != "" {
		s, err := jobs.OpenFileSink(resultsPath)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, nil, err
		}
		sink = s
		closers = append(closers, s.Close)
	}

	return source, sink, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for e := range sub {
		ev := logger.Debug()
		if e.Type == events.EventWorkerFailed {
			ev = logger.Warn()
		}
		for k, v := range e.Metadata {
			ev = ev.Str(k, v)
		}
		ev.Str("event", string(e.Type)).Msg(e.Message)
	}
}
