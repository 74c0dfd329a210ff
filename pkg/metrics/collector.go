package metrics

import (
	"context"
	"time"
)

// IndexStats is the snapshot a stats source reports for gauge refresh.
type IndexStats struct {
	RecordsByStorage map[string]int
	RecordsByType    map[string]int
	Templates        int
	Creators         int
	CursorBlock      int64
}

// StatsSource is implemented by the index store.
type StatsSource interface {
	Stats(ctx context.Context) (IndexStats, error)
}

// JobCounter is implemented by the job tracker.
type JobCounter interface {
	CountByStatus() map[string]int
}

// Collector refreshes gauge metrics from the index store and job tracker
type Collector struct {
	source StatsSource
	jobs   JobCounter
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatsSource, jobs JobCounter) *Collector {
	return &Collector{
		source: source,
		jobs:   jobs,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectIndexMetrics()
	c.collectJobMetrics()
}

func (c *Collector) collectIndexMetrics() {
	if c.source == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		return
	}

	for storage, count := range stats.RecordsByStorage {
		RecordsTotal.WithLabelValues(storage).Set(float64(count))
	}
	for recordType, count := range stats.RecordsByType {
		RecordsByType.WithLabelValues(recordType).Set(float64(count))
	}
	TemplatesTotal.Set(float64(stats.Templates))
	CreatorsTotal.Set(float64(stats.Creators))
	SyncCursorBlock.Set(float64(stats.CursorBlock))
}

func (c *Collector) collectJobMetrics() {
	if c.jobs == nil {
		return
	}
	for status, count := range c.jobs.CountByStatus() {
		JobsTotal.WithLabelValues(status).Set(float64(count))
	}
}
