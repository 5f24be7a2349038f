package tunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/health"
	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
	"github.com/cuemby/gofast/pkg/provision"
	"github.com/cuemby/gofast/pkg/remote"
	"github.com/cuemby/gofast/pkg/types"
)

// EnableGatewayPorts lets remote forwards bind to the public interface and
// reloads sshd so new connections pick the setting up
const EnableGatewayPorts = `sed -i -E 's/^#?GatewayPorts.*/GatewayPorts yes/' /etc/ssh/sshd_config && ` +
	`(grep -q '^GatewayPorts yes' /etc/ssh/sshd_config || echo 'GatewayPorts yes' >> /etc/ssh/sshd_config) && ` +
	`(systemctl reload ssh || systemctl reload sshd || service ssh reload)`

// Error reports a tunnel setup failure; the fleet cannot start without it
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("reverse tunnel %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Instances creates and destroys the proxy instance
type Instances interface {
	Create(ctx context.Context, w *types.Worker) error
	Destroy(ctx context.Context, instanceID string) error
}

// Config describes the forward to open
type Config struct {
	Name   string // Proxy instance name
	Port   int    // Public port on the proxy, same as the local dispatch port
	Local  string // Local address connections are forwarded to
	Verify bool   // Check /live through the proxy after opening
	Health health.Config
}

// Manager owns the proxy instance and the reverse forward on it
type Manager struct {
	instances Instances
	connector remote.Connector
	config    Config
	logger    zerolog.Logger

	mu      sync.Mutex
	proxy   *types.Worker
	session remote.Session
	forward io.Closer

	stopOnce sync.Once
	stopErr  error
}

// NewManager creates a tunnel manager
func NewManager(instances Instances, connector remote.Connector, cfg Config) *Manager {
	if cfg.Name == "" {
		cfg.Name = "gofast-proxy"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Local == "" {
		cfg.Local = net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port))
	}
	if cfg.Health.Retries == 0 {
		cfg.Health = health.DefaultConfig()
	}
	return &Manager{
		instances: instances,
		connector: connector,
		config:    cfg,
		logger:    log.WithComponent("tunnel"),
	}
}

// Start provisions the proxy, enables GatewayPorts and opens the forward.
// Partial work is undone before an error is returned.
func (m *Manager) Start(ctx context.Context) error {
	proxy := provision.NewWorker(m.config.Name)

	m.logger.Info().Str("name", proxy.Name).Msg("Provisioning proxy instance")
	if err := m.instances.Create(ctx, proxy); err != nil {
		m.cleanup(proxy, nil, nil)
		return &Error{Stage: "provision", Err: err}
	}

	session, err := m.connector.Connect(ctx, proxy.Address)
	if err != nil {
		m.cleanup(proxy, nil, nil)
		return &Error{Stage: "connect", Err: err}
	}
	if _, err := session.Run(ctx, EnableGatewayPorts); err != nil {
		m.cleanup(proxy, session, nil)
		return &Error{Stage: "configure", Err: err}
	}
	session.Close()

	// sshd only applies GatewayPorts to connections made after the reload
	session, err = m.connector.Connect(ctx, proxy.Address)
	if err != nil {
		m.cleanup(proxy, nil, nil)
		return &Error{Stage: "connect", Err: err}
	}

	fwd, ok := session.(remote.Forwarder)
	if !ok {
		m.cleanup(proxy, session, nil)
		return &Error{Stage: "forward", Err: errors.New("session does not support reverse forwarding")}
	}
	bind := net.JoinHostPort("0.0.0.0", strconv.Itoa(m.config.Port))
	forward, err := fwd.ReverseForward(bind, m.config.Local)
	if err != nil {
		m.cleanup(proxy, session, nil)
		return &Error{Stage: "forward", Err: err}
	}

	if m.config.Verify {
		if err := m.verify(ctx, proxy.Address); err != nil {
			m.cleanup(proxy, session, forward)
			return &Error{Stage: "verify", Err: err}
		}
	}

	m.mu.Lock()
	m.proxy = proxy
	m.session = session
	m.forward = forward
	m.mu.Unlock()

	metrics.UpdateComponent("tunnel", true, "forwarding "+m.Address())
	m.logger.Info().
		Str("address", proxy.Address).
		Int("port", m.config.Port).
		Msg("Reverse tunnel ready")
	return nil
}

// verify reaches the dispatch server through the proxy's public port: first
// the port must accept connections, then /live must answer
func (m *Manager) verify(ctx context.Context, host string) error {
	public := net.JoinHostPort(host, strconv.Itoa(m.config.Port))
	checkers := []health.Checker{
		health.NewTCPChecker(public).WithTimeout(m.config.Health.Timeout),
		health.NewHTTPChecker("http://"+public+"/live").
			WithHeader("User-Agent", "GoFast Coordinator").
			WithBodyContains(`"alive"`).
			WithTimeout(m.config.Health.Timeout),
	}

	for _, c := range checkers {
		result, err := health.Wait(ctx, c, m.config.Health)
		if err != nil {
			return fmt.Errorf("%s: %w", result.Message, err)
		}
		m.logger.Debug().Str("check", string(c.Type())).Msg(result.Message)
	}
	return nil
}

func (m *Manager) cleanup(proxy *types.Worker, session remote.Session, forward io.Closer) {
	if forward != nil {
		forward.Close()
	}
	if session != nil {
		session.Close()
	}
	if proxy.InstanceID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := m.instances.Destroy(ctx, proxy.InstanceID); err != nil {
		m.logger.Error().Err(err).Str("instance_id", proxy.InstanceID).Msg("Failed to destroy proxy after setup failure")
	}
}

// Address is the host workers must use to reach the coordinator
func (m *Manager) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proxy == nil {
		return ""
	}
	return m.proxy.Address
}

// Active reports whether the forward is open
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forward != nil
}

// Stop closes the forward and destroys the proxy. Only the first call does
// any work; later calls return the first call's result.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		proxy, session, forward := m.proxy, m.session, m.forward
		m.forward = nil
		m.mu.Unlock()

		if proxy == nil {
			return
		}

		m.logger.Info().Str("address", proxy.Address).Msg("Tearing down reverse tunnel")
		if forward != nil {
			forward.Close()
		}
		if session != nil {
			session.Close()
		}
		if err := m.instances.Destroy(ctx, proxy.InstanceID); err != nil {
			m.stopErr = &Error{Stage: "teardown", Err: err}
			m.logger.Error().Err(err).Str("instance_id", proxy.InstanceID).Msg("Failed to destroy proxy instance")
		}
		metrics.UpdateComponent("tunnel", true, "stopped")
	})
	return m.stopErr
}
