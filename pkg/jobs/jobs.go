package jobs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

var null = json.RawMessage("null")

// LineSource hands out one job per non-blank line of a reader. Lines that
// are valid JSON are used as is, anything else becomes a JSON string. Once
// the input is exhausted every call returns null.
type LineSource struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	closer  io.Closer
	served  int
	done    bool
}

// NewLineSource reads jobs from r
func NewLineSource(r io.Reader) *LineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	s := &LineSource{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenLineSource reads jobs from a file
func OpenLineSource(path string) (*LineSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs file: %w", err)
	}
	return NewLineSource(f), nil
}

func (s *LineSource) GetJob(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.done {
		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read jobs: %w", err)
			}
			break
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		s.served++
		return encodeLine(line)
	}
	return null, nil
}

// Served returns the number of jobs handed out
func (s *LineSource) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

func (s *LineSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func encodeLine(line []byte) (json.RawMessage, error) {
	if json.Valid(line) {
		return json.RawMessage(append([]byte(nil), line...)), nil
	}
	encoded, err := json.Marshal(string(line))
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	return encoded, nil
}

// FileSink appends every result to a writer as one JSON line
type FileSink struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	received int
}

// NewFileSink writes results to w
func NewFileSink(w io.Writer) *FileSink {
	s := &FileSink{w: w}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenFileSink appends results to the file at path, creating it if needed
func OpenFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	return NewFileSink(f), nil
}

// ReceiveResult stores the result. A nil reply lets the server answer "ok".
func (s *FileSink) ReceiveResult(ctx context.Context, result json.RawMessage) (interface{}, error) {
	line, err := resultLine(result)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return nil, fmt.Errorf("failed to write result: %w", err)
	}
	s.received++
	return nil, nil
}

// Received returns the number of results written
func (s *FileSink) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received
}

func (s *FileSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func resultLine(result json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if json.Valid(result) {
		if err := json.Compact(&buf, result); err != nil {
			return nil, fmt.Errorf("failed to compact result: %w", err)
		}
	} else {
		encoded, err := json.Marshal(string(result))
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		buf.Write(encoded)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
