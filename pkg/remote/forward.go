package remote

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// serveForward accepts connections on ln until it is closed and pipes each
// one to localAddr
func serveForward(ln net.Listener, localAddr string, logger zerolog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Debug().Err(err).Msg("Reverse forward listener closed")
			return
		}
		go pipe(conn, localAddr, logger)
	}
}

func pipe(remote net.Conn, localAddr string, logger zerolog.Logger) {
	defer remote.Close()

	local, err := net.DialTimeout("tcp", localAddr, 5*time.Second)
	if err != nil {
		logger.Warn().Err(err).Str("local", localAddr).Msg("Failed to reach local endpoint for forwarded connection")
		return
	}
	defer local.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(local, remote)
		closeWrite(local)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(remote, local)
		closeWrite(remote)
	}()
	wg.Wait()
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = c.Close()
}
