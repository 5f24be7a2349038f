package log

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sethgrid/pester"
)

// DefaultRemoteTries bounds delivery attempts for a single batch of records
const DefaultRemoteTries = 3

// RemoteWriter ships log records to a coordinator's /log endpoint.
// Writes are queued and delivered by a background goroutine so that logging
// never blocks on the network; records are dropped when the queue is full.
type RemoteWriter struct {
	url    string
	client *pester.Client

	queue chan []byte
	wg    sync.WaitGroup
	once  sync.Once
}

// NewRemoteWriter creates a writer posting to url (e.g. http://host:8080/log)
func NewRemoteWriter(url string) *RemoteWriter {
	client := pester.New()
	client.Backoff = pester.LinearJitterBackoff
	client.MaxRetries = DefaultRemoteTries
	client.Timeout = 10 * time.Second
	client.LogHook = func(e pester.ErrEntry) {
		fmt.Fprintf(os.Stderr, "log shipping retry %d to %s: %v\n", e.Attempt, e.URL, e.Err)
	}

	w := &RemoteWriter{
		url:    url,
		client: client,
		queue:  make(chan []byte, 256),
	}

	w.wg.Add(1)
	go w.run()
	return w
}

// Write queues a copy of p for delivery
func (w *RemoteWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)

	select {
	case w.queue <- buf:
	default:
		// queue full, drop the record
	}
	return len(p), nil
}

// Close drains pending records and stops the delivery goroutine
func (w *RemoteWriter) Close() error {
	w.once.Do(func() {
		close(w.queue)
	})
	w.wg.Wait()
	return nil
}

func (w *RemoteWriter) run() {
	defer w.wg.Done()

	for rec := range w.queue {
		// coalesce whatever else is already waiting into one request
		batch := bytes.NewBuffer(rec)
	drain:
		for {
			select {
			case more, ok := <-w.queue:
				if !ok {
					break drain
				}
				batch.Write(more)
			default:
				break drain
			}
		}

		if err := w.post(batch.Bytes()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to ship logs: %v\n", err)
		}
	}
}

func (w *RemoteWriter) post(body []byte) error {
	resp, err := w.client.Post(w.url, "text/plain", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("log endpoint returned %s", resp.Status)
	}
	return nil
}
