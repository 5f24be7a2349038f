package fleet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/artifact"
	"github.com/cuemby/gofast/pkg/events"
	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
	"github.com/cuemby/gofast/pkg/provider"
	"github.com/cuemby/gofast/pkg/provision"
	"github.com/cuemby/gofast/pkg/registry"
	"github.com/cuemby/gofast/pkg/remote"
	"github.com/cuemby/gofast/pkg/setup"
	"github.com/cuemby/gofast/pkg/storage"
	"github.com/cuemby/gofast/pkg/types"
	"github.com/cuemby/gofast/pkg/worker"
)

// DefaultDestroyTimeout bounds instance deletion during cleanup paths that
// cannot use the caller's context
const DefaultDestroyTimeout = 2 * time.Minute

// Chain stages, used as the chain failure metric label
const (
	StageProvision = "provision"
	StageRegister  = "register"
	StageConnect   = "connect"
	StageUpload    = "upload"
	StageSetup     = "setup"
	StageStart     = "start"
)

// Tunnel is the reverse tunnel the fleet reaches the coordinator through
type Tunnel interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Address() string
	Active() bool
}

// Config holds the per-run fleet settings
type Config struct {
	Concurrency  int
	NamePrefix   string
	StartCommand string
	Setup        []types.SetupCommand

	// ArtifactRemotePath is where the built artifact is uploaded
	ArtifactRemotePath string

	// Port is the dispatch server port workers connect to
	Port int

	// AdvertiseHost is the coordinator address given to workers when no
	// tunnel is used
	AdvertiseHost string

	ConnectAttempts int
	ConnectDelay    time.Duration
	DestroyTimeout  time.Duration

	// FetchTimeout is handed to the started worker process through its
	// environment. Zero leaves the worker's own default in place.
	FetchTimeout time.Duration

	Provision provision.Config
}

// Orchestrator runs the provision, configure and start chains for every
// worker and shuts workers down as they run out of jobs
type Orchestrator struct {
	config      Config
	provisioner *provision.Provisioner
	connector   remote.Connector
	builder     artifact.Builder
	tunnel      Tunnel
	broker      *events.Broker
	ledger      storage.Ledger
	registry    *registry.Registry
	logger      zerolog.Logger

	mu           sync.Mutex
	workers      []*types.Worker
	sessions     map[string]remote.Session
	started      bool
	pending      int // chains that have neither registered their worker nor failed
	shuttingDown int
	artifactPath string

	chains    sync.WaitGroup
	drained   chan struct{}
	drainOnce sync.Once
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTunnel routes workers through a reverse tunnel
func WithTunnel(t Tunnel) Option {
	return func(o *Orchestrator) { o.tunnel = t }
}

// WithBroker publishes lifecycle events on b
func WithBroker(b *events.Broker) Option {
	return func(o *Orchestrator) { o.broker = b }
}

// WithArtifact sets the artifact builder (nothing is shipped by default)
func WithArtifact(b artifact.Builder) Option {
	return func(o *Orchestrator) { o.builder = b }
}

// WithLedger records worker instances so leaked ones can be reaped
func WithLedger(l storage.Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithRegistry replaces the worker registry
func WithRegistry(r *registry.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// New creates an orchestrator. Connections made through connector are
// retried according to cfg.ConnectAttempts and cfg.ConnectDelay.
func New(cfg Config, prov provider.Provider, connector remote.Connector, opts ...Option) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "gofast-worker"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DestroyTimeout <= 0 {
		cfg.DestroyTimeout = DefaultDestroyTimeout
	}

	o := &Orchestrator{
		config:   cfg,
		builder:  artifact.None{},
		registry: registry.New(),
		sessions: make(map[string]remote.Session),
		drained:  make(chan struct{}),
		logger:   log.WithComponent("fleet"),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.connector = remote.NewDialer(connector, cfg.ConnectAttempts, cfg.ConnectDelay)

	provOpts := []provision.Option{
		provision.WithTransitions(o.transition),
		provision.WithLocker(&o.mu),
	}
	if o.ledger != nil {
		provOpts = append(provOpts, provision.WithLedger(o.ledger))
	}
	o.provisioner = provision.New(prov, cfg.Provision, provOpts...)

	return o
}

// Registry returns the live worker registry
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Drained is closed once every chain has finished and every registered
// worker has been shut down
func (o *Orchestrator) Drained() <-chan struct{} {
	return o.drained
}

// Workers returns a snapshot of every worker created in this run
func (o *Orchestrator) Workers() []*types.Worker {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*types.Worker, len(o.workers))
	for i, w := range o.workers {
		cp := *w
		out[i] = &cp
	}
	return out
}

// Run builds the artifact, starts the tunnel when configured, launches the
// chains and blocks until the fleet has drained or ctx is cancelled. A
// cancelled run destroys every worker still registered.
func (o *Orchestrator) Run(ctx context.Context) error {
	path, err := o.builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build artifact: %w", err)
	}
	if path != "" && o.config.ArtifactRemotePath == "" {
		return fmt.Errorf("artifact %s has no remote path", path)
	}

	host, err := o.coordinatorHost(ctx)
	if err != nil {
		return err
	}
	server := "server:" + net.JoinHostPort(host, strconv.Itoa(o.config.Port))

	o.mu.Lock()
	o.artifactPath = path
	o.started = true
	o.pending = o.config.Concurrency
	o.mu.Unlock()

	o.logger.Info().
		Int("concurrency", o.config.Concurrency).
		Str("coordinator", server).
		Bool("tunnel", o.tunnel != nil).
		Msg("Launching worker chains")

	for i := 0; i < o.config.Concurrency; i++ {
		name := fmt.Sprintf("%s-%d", o.config.NamePrefix, i+1)
		o.chains.Add(1)
		go func() {
			defer o.chains.Done()
			o.runChain(ctx, name, server)
		}()
	}

	select {
	case <-o.drained:
	case <-ctx.Done():
		o.logger.Warn().Msg("Run cancelled, tearing down fleet")
	}

	o.chains.Wait()
	if err := ctx.Err(); err != nil {
		o.teardown()
		return err
	}
	o.logSummary()
	return nil
}

func (o *Orchestrator) coordinatorHost(ctx context.Context) (string, error) {
	if o.tunnel == nil {
		metrics.RegisterComponent("tunnel", true, "disabled")
		if o.config.AdvertiseHost == "" {
			return "", errors.New("no tunnel and no advertise host: workers could not reach the coordinator")
		}
		return o.config.AdvertiseHost, nil
	}

	metrics.RegisterComponent("tunnel", false, "starting")
	if err := o.tunnel.Start(ctx); err != nil {
		metrics.UpdateComponent("tunnel", false, err.Error())
		return "", err
	}
	o.publish(&events.Event{
		Type:     events.EventTunnelStarted,
		Message:  "reverse tunnel ready",
		Metadata: map[string]string{"address": o.tunnel.Address()},
	})
	return o.tunnel.Address(), nil
}

// runChain takes one worker from requested to running. Failures are
// contained to the chain.
func (o *Orchestrator) runChain(ctx context.Context, name, server string) {
	w := provision.NewWorker(name)
	o.track(w)
	logger := log.WithWorker(w.ID, "").With().Str("name", name).Logger()

	if err := o.provisioner.Create(ctx, w); err != nil {
		o.abort(w, false, StageProvision, err)
		return
	}
	logger = logger.With().Str("address", w.Address).Logger()

	if err := o.register(w); err != nil {
		o.abort(w, false, StageRegister, err)
		return
	}

	session, err := o.connector.Connect(ctx, w.Address)
	if err != nil {
		o.abort(w, true, StageConnect, err)
		return
	}
	o.setSession(w.ID, session)

	o.mu.Lock()
	path := o.artifactPath
	o.mu.Unlock()
	if path != "" {
		if err := session.Upload(ctx, path, o.config.ArtifactRemotePath); err != nil {
			o.abort(w, true, StageUpload, err)
			return
		}
	}

	if err := o.transition(w, types.WorkerStatusConfiguring); err != nil {
		o.abort(w, true, StageSetup, err)
		return
	}

	if err := setup.NewPipeline(logger).Run(ctx, session, o.config.Setup); err != nil {
		o.abort(w, true, StageSetup, err)
		return
	}

	cmd := o.startCommand(server)
	proc, err := session.Start(ctx, cmd)
	if err != nil {
		o.abort(w, true, StageStart, err)
		return
	}
	if err := o.transition(w, types.WorkerStatusRunning); err != nil {
		// shut down while the start command was being issued
		logger.Debug().Err(err).Msg("Worker left configuring before it was marked running")
		return
	}
	logger.Info().Str("cmd", cmd).Msg("Worker running")

	go func() {
		err := proc.Wait()
		logger.Debug().Err(err).Msg("Worker process exited")
	}()
}

// startCommand appends the server argument to the configured start command
// and prefixes the fetch timeout variable when one is set
func (o *Orchestrator) startCommand(server string) string {
	cmd := o.config.StartCommand + " " + server
	if o.config.FetchTimeout > 0 {
		cmd = worker.FetchTimeoutEnv + "=" + o.config.FetchTimeout.String() + " " + cmd
	}
	return cmd
}

// register adds w to the registry and stops counting its chain as pending in
// one step, so a shutdown racing the registration always sees both or neither
func (o *Orchestrator) register(w *types.Worker) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.registry.Register(w); err != nil {
		return err
	}
	o.pending--
	return nil
}

// abort ends a chain before running: the worker is marked failed, its
// instance destroyed and the fleet checked for drain. A worker that was
// shut down concurrently is left to the shutdown path.
func (o *Orchestrator) abort(w *types.Worker, registered bool, stage string, cause error) {
	metrics.ChainFailures.WithLabelValues(stage).Inc()
	logger := log.WithWorker(w.ID, w.Address).With().Str("name", w.Name).Str("stage", stage).Logger()

	if registered {
		if removed, _ := o.registry.Remove(w.ID); !removed {
			logger.Debug().Err(cause).Msg("Chain stopped, worker already shut down")
			o.closeSession(w.ID)
			o.checkDrained()
			return
		}
	}

	logger.Error().Err(cause).Msg("Worker chain failed")

	o.mu.Lock()
	w.Error = cause.Error()
	o.transitionLocked(w, types.WorkerStatusFailed)
	if !registered {
		o.pending--
	}
	o.mu.Unlock()

	o.publish(&events.Event{
		Type:    events.EventWorkerFailed,
		Message: cause.Error(),
		Metadata: map[string]string{
			"worker_id": w.ID,
			"name":      w.Name,
			"stage":     stage,
		},
	})

	o.closeSession(w.ID)
	if w.InstanceID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), o.config.DestroyTimeout)
		err := o.provisioner.Destroy(ctx, w.InstanceID)
		cancel()
		if err != nil {
			logger.Error().Err(err).Str("instance_id", w.InstanceID).Msg("Failed to destroy instance of failed worker")
		}
	}

	o.mu.Lock()
	o.transitionLocked(w, types.WorkerStatusDestroyed)
	o.mu.Unlock()

	o.checkDrained()
}

// WorkerShutdown destroys the worker registered at address. It is called by
// the dispatch server once the worker has been handed a null job.
func (o *Orchestrator) WorkerShutdown(ctx context.Context, address string) {
	w, emptied, err := o.registry.LookupAndRemove(address)
	if err != nil {
		o.logger.Warn().Err(err).Str("address", address).Msg("Shutdown requested for unknown worker")
		return
	}
	logger := log.WithWorker(w.ID, w.Address).With().Str("name", w.Name).Logger()

	o.mu.Lock()
	o.shuttingDown++
	o.transitionLocked(w, types.WorkerStatusShuttingDown)
	o.mu.Unlock()

	logger.Info().Bool("last", emptied).Msg("Shutting down worker")
	metrics.WorkerShutdowns.Inc()

	err = o.provisioner.Destroy(ctx, w.InstanceID)
	o.closeSession(w.ID)

	o.mu.Lock()
	if err != nil {
		w.Error = err.Error()
		logger.Error().Err(err).Str("instance_id", w.InstanceID).Msg("Failed to destroy worker instance")
	} else {
		o.transitionLocked(w, types.WorkerStatusDestroyed)
	}
	o.shuttingDown--
	o.mu.Unlock()

	o.checkDrained()
}

// checkDrained finishes the run once no chain is still on its way to the
// registry, the registry is empty and no shutdown is in flight
func (o *Orchestrator) checkDrained() {
	o.mu.Lock()
	idle := o.started && o.pending == 0 && o.shuttingDown == 0 && o.registry.Empty()
	o.mu.Unlock()

	if idle {
		o.drainOnce.Do(o.drain)
	}
}

func (o *Orchestrator) drain() {
	if o.tunnel != nil && o.tunnel.Active() {
		ctx, cancel := context.WithTimeout(context.Background(), o.config.DestroyTimeout)
		err := o.tunnel.Stop(ctx)
		cancel()
		if err != nil {
			o.logger.Error().Err(err).Msg("Failed to tear down reverse tunnel")
		}
		o.publish(&events.Event{Type: events.EventTunnelStopped, Message: "reverse tunnel removed"})
	}

	o.publish(&events.Event{Type: events.EventFleetDrained, Message: "all workers shut down"})
	o.logger.Info().Msg("Fleet drained")
	close(o.drained)
}

// teardown destroys whatever is still registered after a cancelled run
func (o *Orchestrator) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.DestroyTimeout)
	defer cancel()

	for _, w := range o.registry.List() {
		o.WorkerShutdown(ctx, w.Address)
	}
	o.drainOnce.Do(o.drain)
}

// transition applies a lifecycle change under the fleet lock and publishes it
func (o *Orchestrator) transition(w *types.Worker, to types.WorkerStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transitionLocked(w, to)
}

func (o *Orchestrator) transitionLocked(w *types.Worker, to types.WorkerStatus) error {
	from, err := w.Transition(to)
	if err != nil {
		return err
	}
	o.publish(events.Transition(w, from, to))
	return nil
}

func (o *Orchestrator) publish(e *events.Event) {
	if o.broker != nil {
		o.broker.Publish(e)
	}
}

func (o *Orchestrator) track(w *types.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, w)
}

func (o *Orchestrator) setSession(id string, s remote.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[id] = s
}

func (o *Orchestrator) closeSession(id string) {
	o.mu.Lock()
	s, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (o *Orchestrator) logSummary() {
	counts := make(map[types.WorkerStatus]int)
	failed := 0
	for _, w := range o.Workers() {
		counts[w.Status]++
		if w.Error != "" {
			failed++
		}
	}
	o.logger.Info().
		Int("workers", o.config.Concurrency).
		Int("destroyed", counts[types.WorkerStatusDestroyed]).
		Int("failed", failed).
		Msg("Run complete")
}
