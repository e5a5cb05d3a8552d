package metrics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStatsProvider struct {
	calls atomic.Int32
	stats Stats
}

func (f *fakeStatsProvider) GetStats() Stats {
	f.calls.Add(1)
	return f.stats
}

func TestCollectorCollectsOnStart(t *testing.T) {
	provider := &fakeStatsProvider{stats: Stats{
		TotalFiles:        42,
		TotalTags:         7,
		TotalSets:         2,
		TotalRepositories: 1,
	}}

	c := NewCollector(provider, time.Hour)
	c.Start()
	c.Stop()

	if provider.calls.Load() < 1 {
		t.Fatal("expected at least one collection")
	}
	if got := testutil.ToFloat64(CatalogFilesTotal); got != 42 {
		t.Errorf("CatalogFilesTotal = %v, want 42", got)
	}
	if got := testutil.ToFloat64(CatalogTagsTotal); got != 7 {
		t.Errorf("CatalogTagsTotal = %v, want 7", got)
	}
	if got := testutil.ToFloat64(CatalogSetsTotal); got != 2 {
		t.Errorf("CatalogSetsTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(CatalogRepositoriesTotal); got != 1 {
		t.Errorf("CatalogRepositoriesTotal = %v, want 1", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.Start()
	c.Stop()
}

func TestNewCollectorDefaultInterval(t *testing.T) {
	c := NewCollector(nil, 0)
	if c.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", c.interval)
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	if got := testutil.CollectAndCount(DBQueryTotal); got == 0 {
		t.Error("expected DBQueryTotal series after initialization")
	}
	if got := testutil.CollectAndCount(ThumbnailGenerationsTotal); got != 6 {
		t.Errorf("ThumbnailGenerationsTotal series = %d, want 6", got)
	}
}
