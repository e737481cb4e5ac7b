package engine

import (
	"context"
	"time"

	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/task"
)

// Simulator is an Engine that performs no warehouse work. It reports every
// action as succeeded and identical row counts for both sides, so a full
// scheduling run can be rehearsed before real engines are wired in.
type Simulator struct {
	// Delay is slept per action to mimic execution time (default: none).
	Delay time.Duration
}

// Compile-time check that Simulator implements Engine.
var _ Engine = (*Simulator)(nil)

// Execute sleeps the configured delay and succeeds.
func (s *Simulator) Execute(ctx context.Context, action warehaul.Action, t *task.Task) error {
	return s.sleep(ctx)
}

// CountRows reports a zero count per partition, keyed by partition key.
// Non-partitioned tables get a single count under the empty key. Both sides
// observe the same counts, so verification always passes.
func (s *Simulator) CountRows(ctx context.Context, t *task.Task) (map[string]int64, error) {
	if err := s.sleep(ctx); err != nil {
		return nil, err
	}

	table := t.Table()
	if !table.IsPartitioned() {
		return map[string]int64{"": 0}, nil
	}

	counts := make(map[string]int64, len(table.Partitions))
	for _, p := range table.Partitions {
		counts[p.Key()] = 0
	}
	return counts, nil
}

func (s *Simulator) sleep(ctx context.Context) error {
	if s.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(s.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
