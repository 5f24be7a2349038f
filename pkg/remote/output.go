package remote

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/gofast/pkg/log"
	"github.com/cuemby/gofast/pkg/metrics"
)

const captureLimit = 64 * 1024

// cappedBuffer keeps the first captureLimit bytes written to it
type cappedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := captureLimit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// forwardOutput logs every line read from r at level and captures it.
// Lines that are single JSON objects are worker log records and are
// re-emitted at their own level instead.
func forwardOutput(r io.Reader, capture io.Writer, logger zerolog.Logger, level zerolog.Level) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		_, _ = capture.Write([]byte(line + "\n"))

		if log.EmitLines(logger, line) > 0 {
			metrics.LogRecords.Inc()
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		logger.WithLevel(level).Msg(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug().Err(err).Msg("Output stream ended with error")
	}
}
