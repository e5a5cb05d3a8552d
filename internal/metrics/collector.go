package metrics

import (
	"time"

	"cobiv/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current catalog statistics
type Stats struct {
	TotalFiles        int
	TotalTags         int
	TotalSets         int
	TotalRepositories int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CatalogFilesTotal.Set(float64(stats.TotalFiles))
	CatalogTagsTotal.Set(float64(stats.TotalTags))
	CatalogSetsTotal.Set(float64(stats.TotalSets))
	CatalogRepositoriesTotal.Set(float64(stats.TotalRepositories))

	logging.Debug("Metrics collected: files=%d, tags=%d, sets=%d, repositories=%d",
		stats.TotalFiles, stats.TotalTags, stats.TotalSets, stats.TotalRepositories)
}
