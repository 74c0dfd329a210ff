package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
)

// StoreChecker probes the index store by reading its stats. A failing
// store is the one dependency the daemon cannot degrade around.
type StoreChecker struct {
	Source metrics.StatsSource
}

// NewStoreChecker creates a checker over the index store.
func NewStoreChecker(source metrics.StatsSource) *StoreChecker {
	return &StoreChecker{Source: source}
}

// Check reads index stats and reports store health.
func (s *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()

	stats, err := s.Source.Stats(ctx)
	duration := time.Since(start)

	if err != nil {
		return Result{
			Healthy:  false,
			Message:  fmt.Sprintf("stats read failed: %v", err),
			Duration: duration,
		}
	}

	total := 0
	for _, n := range stats.RecordsByStorage {
		total += n
	}
	return Result{
		Healthy:  true,
		Message:  fmt.Sprintf("%d records, %d templates indexed", total, stats.Templates),
		Duration: duration,
	}
}

// Type returns the checker type.
func (s *StoreChecker) Type() CheckType {
	return CheckTypeStore
}
