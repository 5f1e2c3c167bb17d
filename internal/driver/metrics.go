package driver

import (
	"fmt"
	"sync/atomic"

	"fortio.org/safecast"
)

// mergeMetrics tracks counters shared by all workers of one run.
type mergeMetrics struct {
	shards  atomic.Int64
	records atomic.Int64
	errors  atomic.Int64
}

func (m *mergeMetrics) summary(symbols, workers int) string {
	return fmt.Sprintf("workers: %d | shards: %d | records: %d | symbols: %d | errors: %d",
		workers, m.shards.Load(), m.records.Load(), symbols, m.errors.Load())
}

// counts returns the shard and record counters as ints.
func (m *mergeMetrics) counts() (shards, records int, err error) {
	if shards, err = safecast.Conv[int](m.shards.Load()); err != nil {
		return 0, 0, fmt.Errorf("shard count: %w", err)
	}
	if records, err = safecast.Conv[int](m.records.Load()); err != nil {
		return 0, 0, fmt.Errorf("record count: %w", err)
	}
	return shards, records, nil
}
