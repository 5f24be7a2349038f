package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
)

// DefaultPort is the port workers expect the coordinator on
const DefaultPort = 8080

// Server is the HTTP surface workers talk to
type Server struct {
	jobs     JobSource
	results  ResultSink
	shutdown ShutdownHook

	router     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	logger     zerolog.Logger

	// shutdowns run detached from the request that triggered them
	baseCtx    context.Context
	cancelBase context.CancelFunc
	pending    sync.WaitGroup

	mu       sync.Mutex
	finished map[string]struct{}
}

// Option configures a Server
type Option func(*Server)

// WithJobSource sets where jobs come from
func WithJobSource(src JobSource) Option {
	return func(s *Server) { s.jobs = src }
}

// WithResultSink sets where results go
func WithResultSink(sink ResultSink) Option {
	return func(s *Server) { s.results = sink }
}

// WithShutdownHook sets who is told about finished workers
func WithShutdownHook(hook ShutdownHook) Option {
	return func(s *Server) { s.shutdown = hook }
}

// NewServer creates a server with the default handlers replaced by opts
func NewServer(opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobs:       NoJobs,
		results:    AckResults,
		shutdown:   NoopShutdown,
		logger:     log.WithComponent("dispatch"),
		baseCtx:    ctx,
		cancelBase: cancel,
		finished:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Open starts listening on addr and serving in the background
func (s *Server) Open(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.RegisterComponent("dispatch", false, err.Error())
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Dispatch server stopped")
			metrics.UpdateComponent("dispatch", false, err.Error())
		}
	}()

	metrics.RegisterComponent("dispatch", true, "listening on "+ln.Addr().String())
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Dispatch server listening")
	return nil
}

// Addr returns the bound listen address, useful when opened on port 0
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting requests and waits for in-flight shutdowns until ctx is done
func (s *Server) Close(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancelBase()
		if err == nil {
			err = ctx.Err()
		}
	}
	s.cancelBase()

	metrics.UpdateComponent("dispatch", false, "closed")
	return err
}

// triggerShutdown calls the shutdown hook once per address, after the
// current response has been flushed
func (s *Server) triggerShutdown(address string) {
	s.mu.Lock()
	if _, seen := s.finished[address]; seen {
		s.mu.Unlock()
		s.logger.Debug().Str("address", address).Msg("Shutdown already issued")
		return
	}
	s.finished[address] = struct{}{}
	s.mu.Unlock()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.logger.Info().Str("address", address).Msg("Worker finished, shutting down")
		s.shutdown.WorkerShutdown(s.baseCtx, address)
	}()
}
