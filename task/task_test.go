package task

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

func partitionedTable() warehaul.TableMeta {
	return warehaul.TableMeta{
		Database:         "sales",
		Table:            "orders",
		PartitionColumns: []string{"ds"},
		Partitions: []warehaul.PartitionMeta{
			{Values: []string{"20200218"}},
			{Values: []string{"20200219"}},
		},
	}
}

func newFullTask(cfg Config) *Task {
	t := New("sales.orders.AB12.0", partitionedTable(), cfg)
	for _, a := range warehaul.AllActions {
		t.AddAction(a)
	}
	return t
}

func TestIsReady_AbsentActionIsFalse(t *testing.T) {
	tk := New("sales.orders", partitionedTable(), Config{})
	tk.AddAction(warehaul.ActionCreateTable)

	assert.False(t, tk.IsReady(warehaul.ActionLoad))
}

func TestIsReady_LowestPriorityActionIsReady(t *testing.T) {
	tk := newFullTask(Config{})

	assert.True(t, tk.IsReady(warehaul.ActionCreateTable))
	assert.False(t, tk.IsReady(warehaul.ActionAddPartitions))
	assert.False(t, tk.IsReady(warehaul.ActionVerify))
}

func TestIsReady_FalseOnceDispatched(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionCreateTable, warehaul.ProgressRunning))

	assert.False(t, tk.IsReady(warehaul.ActionCreateTable))
}

func TestIsReady_UnblocksAsLowerPrioritiesSucceed(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionCreateTable, warehaul.ProgressSucceeded))
	assert.True(t, tk.IsReady(warehaul.ActionAddPartitions))
	assert.False(t, tk.IsReady(warehaul.ActionExtract))

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionAddPartitions, warehaul.ProgressSucceeded))
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionExtract, warehaul.ProgressSucceeded))
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionLoad, warehaul.ProgressSucceeded))

	// Both validations share a tier and are ready concurrently.
	assert.True(t, tk.IsReady(warehaul.ActionValidateSource))
	assert.True(t, tk.IsReady(warehaul.ActionValidateDest))
	assert.False(t, tk.IsReady(warehaul.ActionVerify))
}

func TestIsReady_SameTierDoesNotBlock(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	for _, a := range []warehaul.Action{
		warehaul.ActionCreateTable,
		warehaul.ActionAddPartitions,
		warehaul.ActionExtract,
		warehaul.ActionLoad,
	} {
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}

	// One validation running must not block its tier peer.
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionValidateSource, warehaul.ProgressRunning))
	assert.True(t, tk.IsReady(warehaul.ActionValidateDest))
	// But the higher tier stays blocked.
	assert.False(t, tk.IsReady(warehaul.ActionVerify))
}

func TestIsReady_BlockedByLowerPriorityFailure(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionCreateTable, warehaul.ProgressFailed))

	assert.False(t, tk.IsReady(warehaul.ActionAddPartitions))
	assert.False(t, tk.IsReady(warehaul.ActionLoad))
}

func TestUpdateProgress_AbsentActionIsNoOp(t *testing.T) {
	tk := New("sales.orders", partitionedTable(), Config{})
	tk.AddAction(warehaul.ActionCreateTable)

	require.NoError(t, tk.UpdateProgress(context.Background(), warehaul.ActionLoad, warehaul.ProgressFailed))

	assert.Equal(t, warehaul.ProgressNew, tk.Progress())
}

func TestUpdateProgress_RunningPropagates(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionCreateTable, warehaul.ProgressRunning))

	assert.Equal(t, warehaul.ProgressRunning, tk.Progress())
}

func TestUpdateProgress_FailFast(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionCreateTable, warehaul.ProgressSucceeded))
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionAddPartitions, warehaul.ProgressFailed))

	assert.Equal(t, warehaul.ProgressFailed, tk.Progress())
}

func TestUpdateProgress_TerminalIsFrozen(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionCreateTable, warehaul.ProgressFailed))
	require.Equal(t, warehaul.ProgressFailed, tk.Progress())

	// Nothing resurrects a terminal task.
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionAddPartitions, warehaul.ProgressRunning))
	assert.Equal(t, warehaul.ProgressFailed, tk.Progress())

	for _, a := range warehaul.AllActions {
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}
	assert.Equal(t, warehaul.ProgressFailed, tk.Progress())
}

func TestUpdateProgress_SucceedsOnlyWhenAllSucceed(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	// Completion order scrambled on purpose: the join is commutative.
	order := []warehaul.Action{
		warehaul.ActionVerify,
		warehaul.ActionCreateTable,
		warehaul.ActionValidateDest,
		warehaul.ActionLoad,
		warehaul.ActionAddPartitions,
		warehaul.ActionValidateSource,
		warehaul.ActionExtract,
	}

	for i, a := range order {
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
		if i < len(order)-1 {
			assert.NotEqual(t, warehaul.ProgressSucceeded, tk.Progress(), "task succeeded before action %s", a)
		}
	}

	assert.Equal(t, warehaul.ProgressSucceeded, tk.Progress())
}

func TestUpdateProgress_FailureMarksTableFailed(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	tk := newFullTask(Config{Store: mockStore})

	require.NoError(t, tk.UpdateProgress(context.Background(), warehaul.ActionExtract, warehaul.ProgressFailed))

	require.Len(t, mockStore.MarkTableFailedCalls, 1)
	assert.Equal(t, "sales", mockStore.MarkTableFailedCalls[0].Database)
	assert.Equal(t, "orders", mockStore.MarkTableFailedCalls[0].Table)
}

func TestUpdateProgress_SuccessCheckpointsPartitions(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	tk := newFullTask(Config{Store: mockStore})
	ctx := context.Background()

	for _, a := range warehaul.AllActions {
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}

	require.Len(t, mockStore.UpdatePartitionStatusCalls, 1)
	call := mockStore.UpdatePartitionStatusCalls[0]
	assert.Equal(t, "sales", call.Database)
	assert.Equal(t, "orders", call.Table)
	assert.Equal(t, [][]string{{"20200218"}, {"20200219"}}, call.Partitions)
	assert.Equal(t, warehaul.StatusSucceeded, call.Status)
}

func TestUpdateProgress_NonPartitionedTableSkipsCheckpoint(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	meta := warehaul.TableMeta{Database: "sales", Table: "lookup"}
	tk := New("sales.lookup", meta, Config{Store: mockStore})
	for _, a := range warehaul.AllActions {
		if a == warehaul.ActionAddPartitions {
			continue
		}
		tk.AddAction(a)
	}
	ctx := context.Background()

	for _, a := range tk.Actions() {
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}

	assert.Equal(t, warehaul.ProgressSucceeded, tk.Progress())
	assert.Empty(t, mockStore.UpdatePartitionStatusCalls)
}

// The legacy checkpoint behavior records partitions as succeeded even when
// the task failed because verification failed.
func TestUpdateProgress_VerifyFailureCheckpointsSucceeded(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	tk := newFullTask(Config{Store: mockStore})
	ctx := context.Background()

	for _, a := range warehaul.AllActions {
		if a == warehaul.ActionVerify {
			continue
		}
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionVerify, warehaul.ProgressFailed))

	require.Equal(t, warehaul.ProgressFailed, tk.Progress())
	require.Len(t, mockStore.UpdatePartitionStatusCalls, 1)
	assert.Equal(t, warehaul.StatusSucceeded, mockStore.UpdatePartitionStatusCalls[0].Status)
	require.Len(t, mockStore.MarkTableFailedCalls, 1)
}

func TestUpdateProgress_StrictVerificationChecksPointsFailed(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	tk := newFullTask(Config{Store: mockStore, StrictVerification: true})
	ctx := context.Background()

	for _, a := range warehaul.AllActions {
		if a == warehaul.ActionVerify {
			continue
		}
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}
	require.NoError(t, tk.UpdateProgress(ctx, warehaul.ActionVerify, warehaul.ProgressFailed))

	require.Len(t, mockStore.UpdatePartitionStatusCalls, 1)
	assert.Equal(t, warehaul.StatusFailed, mockStore.UpdatePartitionStatusCalls[0].Status)
}

func TestUpdateProgress_NonVerifyFailureDoesNotCheckpoint(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	tk := newFullTask(Config{Store: mockStore})

	require.NoError(t, tk.UpdateProgress(context.Background(), warehaul.ActionLoad, warehaul.ProgressFailed))

	assert.Empty(t, mockStore.UpdatePartitionStatusCalls)
	assert.Len(t, mockStore.MarkTableFailedCalls, 1)
}

func TestUpdateProgress_ConcurrentSameTierUpdates(t *testing.T) {
	tk := newFullTask(Config{})
	ctx := context.Background()

	for _, a := range []warehaul.Action{
		warehaul.ActionCreateTable,
		warehaul.ActionAddPartitions,
		warehaul.ActionExtract,
		warehaul.ActionLoad,
	} {
		require.NoError(t, tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded))
	}

	// Same-tier validations racing to update must both land.
	var wg sync.WaitGroup
	for _, a := range []warehaul.Action{warehaul.ActionValidateSource, warehaul.ActionValidateDest} {
		wg.Add(1)
		go func(a warehaul.Action) {
			defer wg.Done()
			_ = tk.UpdateProgress(ctx, a, warehaul.ProgressSucceeded)
		}(a)
	}
	wg.Wait()

	p, ok := tk.ActionProgress(warehaul.ActionValidateSource)
	require.True(t, ok)
	assert.Equal(t, warehaul.ProgressSucceeded, p)
	p, ok = tk.ActionProgress(warehaul.ActionValidateDest)
	require.True(t, ok)
	assert.Equal(t, warehaul.ProgressSucceeded, p)
	assert.True(t, tk.IsReady(warehaul.ActionVerify))
}

func TestActions_SortedByPriority(t *testing.T) {
	tk := newFullTask(Config{})

	actions := tk.Actions()

	require.Len(t, actions, len(warehaul.AllActions))
	for i := 1; i < len(actions); i++ {
		assert.LessOrEqual(t, actions[i-1].Priority(), actions[i].Priority())
	}
}

func TestRowCounts_RoundTrip(t *testing.T) {
	tk := newFullTask(Config{})

	tk.SetRowCounts(warehaul.ActionValidateSource, "sales.orders", map[string]int64{
		"20200218": 0,
		"20200219": 1,
	})

	counts := tk.RowCounts(warehaul.ActionValidateSource, "sales.orders")
	assert.Equal(t, map[string]int64{"20200218": 0, "20200219": 1}, counts)

	// Mutating the returned map must not affect the task's copy.
	counts["20200218"] = 99
	assert.Equal(t, int64(0), tk.RowCounts(warehaul.ActionValidateSource, "sales.orders")["20200218"])
}

func TestRowCounts_UnknownActionOrTable(t *testing.T) {
	tk := newFullTask(Config{})

	tk.SetRowCounts(warehaul.Action("bogus"), "sales.orders", map[string]int64{"x": 1})

	assert.Nil(t, tk.RowCounts(warehaul.Action("bogus"), "sales.orders"))
	assert.Nil(t, tk.RowCounts(warehaul.ActionValidateSource, "sales.orders"))
}
