package metrics

import (
	"time"

	"github.com/cuemby/gofast/pkg/types"
)

// WorkerLister is anything that can report the workers it currently tracks
type WorkerLister interface {
	Workers() []*types.Worker
}

// Collector periodically refreshes the worker gauges from a lister
type Collector struct {
	source   WorkerLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source WorkerLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				c.Collect()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect sets gofast_workers_total for every known status
func (c *Collector) Collect() {
	counts := make(map[types.WorkerStatus]int)
	for _, w := range c.source.Workers() {
		counts[w.Status]++
	}

	for _, status := range types.AllStatuses() {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
