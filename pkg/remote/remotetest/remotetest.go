// Package remotetest provides in-memory remote sessions for tests.
package remotetest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cuemby/gofast/pkg/remote"
)

// Call is one recorded session operation
type Call struct {
	Op   string // run, start, upload, forward
	Args []string
}

// Session records every operation and answers with the configured hooks
type Session struct {
	Address string

	RunFunc     func(cmd string) (remote.ExecResult, error)
	StartFunc   func(cmd string) error
	UploadFunc  func(local, remote string) error
	ForwardFunc func(remoteBind, localAddr string) error

	mu       sync.Mutex
	calls    []Call
	closed   bool
	forwards []*Forward
	procs    []*Process
}

func (s *Session) record(op string, args ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Args: args})
}

func (s *Session) Run(ctx context.Context, cmd string) (remote.ExecResult, error) {
	s.record("run", cmd)
	if err := ctx.Err(); err != nil {
		return remote.ExecResult{ExitCode: -1}, &remote.ExecError{Command: cmd, ExitCode: -1, Err: err}
	}
	if s.RunFunc != nil {
		return s.RunFunc(cmd)
	}
	return remote.ExecResult{}, nil
}

func (s *Session) Start(ctx context.Context, cmd string) (remote.Process, error) {
	s.record("start", cmd)
	if s.StartFunc != nil {
		if err := s.StartFunc(cmd); err != nil {
			return nil, err
		}
	}
	p := &Process{done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			p.Exit(ctx.Err())
		case <-p.done:
		}
	}()

	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	s.record("upload", localPath, remotePath)
	if s.UploadFunc != nil {
		return s.UploadFunc(localPath, remotePath)
	}
	return nil
}

func (s *Session) ReverseForward(remoteBind, localAddr string) (io.Closer, error) {
	s.record("forward", remoteBind, localAddr)
	if s.ForwardFunc != nil {
		if err := s.ForwardFunc(remoteBind, localAddr); err != nil {
			return nil, err
		}
	}
	f := &Forward{}
	s.mu.Lock()
	s.forwards = append(s.forwards, f)
	s.mu.Unlock()
	return f, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, p := range s.procs {
		p.Exit(errors.New("session closed"))
	}
	return nil
}

// Calls returns a copy of the recorded operations
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Forwards returns the reverse forwards opened on this session
func (s *Session) Forwards() []*Forward {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Forward, len(s.forwards))
	copy(out, s.forwards)
	return out
}

// Process is a started command that runs until Exit is called
type Process struct {
	once sync.Once
	done chan struct{}
	err  error
}

// Exit ends the process with err
func (p *Process) Exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Forward counts how many times it was closed
type Forward struct {
	mu     sync.Mutex
	closes int
}

func (f *Forward) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

// Closes returns the number of Close calls
func (f *Forward) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Connector hands out one Session per address
type Connector struct {
	// NewSession customises sessions before they are returned
	NewSession func(address string) *Session

	// Fail makes Connect to the listed addresses return the error
	Fail map[string]error

	mu       sync.Mutex
	sessions map[string][]*Session
}

func (c *Connector) Connect(ctx context.Context, address string) (remote.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := c.Fail[address]; ok {
		return nil, err
	}

	var s *Session
	if c.NewSession != nil {
		s = c.NewSession(address)
	} else {
		s = &Session{}
	}
	s.Address = address

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions == nil {
		c.sessions = make(map[string][]*Session)
	}
	c.sessions[address] = append(c.sessions[address], s)
	return s, nil
}

// Sessions returns the sessions opened to address
func (c *Connector) Sessions(address string) []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions[address]...)
}
