package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/cuemby/gofast/pkg/log"
)

// SSHConnector opens key-authenticated SSH sessions
type SSHConnector struct {
	User            string
	Port            int
	Timeout         time.Duration
	HostKeyCallback ssh.HostKeyCallback

	signer ssh.Signer
}

// NewSSHConnector loads a private key from keyPath
func NewSSHConnector(user, keyPath string) (*SSHConnector, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", keyPath, err)
	}
	return NewSSHConnectorWithSigner(user, signer), nil
}

// NewSSHConnectorWithSigner creates a connector from an already loaded key
func NewSSHConnectorWithSigner(user string, signer ssh.Signer) *SSHConnector {
	return &SSHConnector{
		User:    user,
		Port:    22,
		Timeout: 15 * time.Second,
		// Instances are created by this run, so their host keys are never known in advance
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		signer:          signer,
	}
}

// Connect dials address and completes the SSH handshake
func (c *SSHConnector) Connect(ctx context.Context, address string) (Session, error) {
	addr := net.JoinHostPort(address, strconv.Itoa(c.Port))

	dialer := &net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.HostKeyCallback,
		Timeout:         c.Timeout,
	}

	if c.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &sshSession{
		client:  ssh.NewClient(sc, chans, reqs),
		address: address,
		logger:  log.WithComponent("remote").With().Str("address", address).Logger(),
	}, nil
}

type sshSession struct {
	client  *ssh.Client
	address string
	logger  zerolog.Logger
}

func (s *sshSession) Run(ctx context.Context, cmd string) (ExecResult, error) {
	p, err := s.start(ctx, cmd)
	if err != nil {
		return ExecResult{ExitCode: -1}, err
	}
	err = p.Wait()
	return p.result(), err
}

func (s *sshSession) Start(ctx context.Context, cmd string) (Process, error) {
	return s.start(ctx, cmd)
}

func (s *sshSession) start(ctx context.Context, cmd string) (*sshProcess, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, &ExecError{Command: cmd, ExitCode: -1, Err: err}
	}

	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, &ExecError{Command: cmd, ExitCode: -1, Err: err}
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, &ExecError{Command: cmd, ExitCode: -1, Err: err}
	}

	s.logger.Debug().Str("cmd", cmd).Msg("Running remote command")
	if err := sess.Start(cmd); err != nil {
		sess.Close()
		return nil, &ExecError{Command: cmd, ExitCode: -1, Err: err}
	}

	p := &sshProcess{
		cmd:  cmd,
		sess: sess,
		done: make(chan struct{}),
	}

	p.output.Add(2)
	go func() {
		defer p.output.Done()
		forwardOutput(stdout, &p.stdout, s.logger, zerolog.TraceLevel)
	}()
	go func() {
		defer p.output.Done()
		forwardOutput(stderr, &p.stderr, s.logger, zerolog.WarnLevel)
	}()

	go p.wait()
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Signal(ssh.SIGKILL)
			sess.Close()
		case <-p.done:
		}
	}()

	return p, nil
}

func (s *sshSession) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return &UploadError{Local: localPath, Remote: remotePath, Err: err}
	}

	client, err := sftp.NewClient(s.client)
	if err != nil {
		return &UploadError{Local: localPath, Remote: remotePath, Err: err}
	}
	defer client.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-stop:
		}
	}()

	if err := copyFile(client, localPath, remotePath); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &UploadError{Local: localPath, Remote: remotePath, Err: err}
	}

	s.logger.Debug().Str("local", localPath).Str("remote", remotePath).Msg("Upload complete")
	return nil
}

func copyFile(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return client.Chmod(remotePath, info.Mode().Perm())
}

// ReverseForward listens on remoteBind on the remote host and pipes every
// accepted connection to localAddr on this machine
func (s *sshSession) ReverseForward(remoteBind, localAddr string) (io.Closer, error) {
	ln, err := s.client.Listen("tcp", remoteBind)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s via %s: %w", remoteBind, s.address, err)
	}

	s.logger.Info().Str("remote", remoteBind).Str("local", localAddr).Msg("Reverse forward open")
	go serveForward(ln, localAddr, s.logger)
	return ln, nil
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

type sshProcess struct {
	cmd            string
	sess           *ssh.Session
	stdout, stderr cappedBuffer
	output         sync.WaitGroup
	done           chan struct{}
	exitCode       int
	err            error
}

func (p *sshProcess) wait() {
	err := p.sess.Wait()
	p.output.Wait()
	p.sess.Close()

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitStatus()
			p.err = &ExecError{Command: p.cmd, ExitCode: p.exitCode, Stderr: p.stderr.String()}
		} else {
			p.exitCode = -1
			p.err = &ExecError{Command: p.cmd, ExitCode: -1, Stderr: p.stderr.String(), Err: err}
		}
	}
	close(p.done)
}

func (p *sshProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *sshProcess) result() ExecResult {
	return ExecResult{
		ExitCode: p.exitCode,
		Stdout:   p.stdout.String(),
		Stderr:   p.stderr.String(),
	}
}
