package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

func testTable() warehaul.TableMeta {
	return warehaul.TableMeta{
		Database:         "sales",
		Table:            "orders",
		PartitionColumns: []string{"ds"},
		Partitions: []warehaul.PartitionMeta{
			{Values: []string{"20200218"}},
			{Values: []string{"20200219"}},
			{Values: []string{"20200220"}},
		},
	}
}

func TestRegisterTable_SetsPendingState(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.RegisterTable(ctx, testTable(), store.TableConfig{PartitionGroupSize: 2})
	require.NoError(t, err)

	state, err := s.GetTableState(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, warehaul.StatusPending, state.Status)
	assert.True(t, state.IsPartitioned)
	assert.Equal(t, 0, state.AttemptTimes)
	assert.True(t, state.LastSuccess.IsZero())

	cfg, err := s.GetTableConfig(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.PartitionGroupSize)
}

func TestRegisterTable_ReRegisterKeepsState(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))
	require.NoError(t, s.MarkTableFailed(ctx, "sales", "orders"))

	// Re-register with a new config: state survives, config is replaced.
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{PartitionGroupSize: 1}))

	state, err := s.GetTableState(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, state.AttemptTimes)

	cfg, err := s.GetTableConfig(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.PartitionGroupSize)
}

func TestGetTableConfig_UnknownTableYieldsZeroConfig(t *testing.T) {
	s := New()

	cfg, err := s.GetTableConfig(context.Background(), "nope", "nothing")

	require.NoError(t, err)
	assert.Equal(t, store.TableConfig{}, cfg)
}

func TestGetTableState_UnknownTable(t *testing.T) {
	s := New()

	_, err := s.GetTableState(context.Background(), "nope", "nothing")

	assert.ErrorIs(t, err, warehaul.ErrTableNotFound)
}

func TestMarkTableFailed_IncrementsAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))

	require.NoError(t, s.MarkTableFailed(ctx, "sales", "orders"))
	require.NoError(t, s.MarkTableFailed(ctx, "sales", "orders"))

	state, err := s.GetTableState(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, warehaul.StatusFailed, state.Status)
	assert.Equal(t, 2, state.AttemptTimes)
}

func TestUpdateTableStatus_SucceededStampsLastSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))

	require.NoError(t, s.UpdateTableStatus(ctx, "sales", "orders", warehaul.StatusSucceeded))

	state, err := s.GetTableState(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, warehaul.StatusSucceeded, state.Status)
	assert.False(t, state.LastSuccess.IsZero())
}

func TestUpdatePartitionStatus_ChecksPointBatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))

	err := s.UpdatePartitionStatus(ctx, "sales", "orders",
		[][]string{{"20200218"}, {"20200219"}}, warehaul.StatusSucceeded)
	require.NoError(t, err)

	states, err := s.ListPartitionStates(ctx, "sales", "orders")
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, warehaul.StatusSucceeded, states[0].Status)
	assert.False(t, states[0].LastSuccess.IsZero())
	assert.Equal(t, warehaul.StatusSucceeded, states[1].Status)
	assert.Equal(t, warehaul.StatusPending, states[2].Status)
}

func TestUpdatePartitionStatus_FailedIncrementsAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))

	require.NoError(t, s.UpdatePartitionStatus(ctx, "sales", "orders",
		[][]string{{"20200220"}}, warehaul.StatusFailed))
	require.NoError(t, s.UpdatePartitionStatus(ctx, "sales", "orders",
		[][]string{{"20200220"}}, warehaul.StatusFailed))

	failed, err := s.ListFailedPartitions(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"20200220"}}, failed)

	states, err := s.ListPartitionStates(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, 2, states[2].AttemptTimes)
}

func TestUpdatePartitionStatus_UnknownPartitionIsCreated(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))

	require.NoError(t, s.UpdatePartitionStatus(ctx, "sales", "orders",
		[][]string{{"20200301"}}, warehaul.StatusSucceeded))

	states, err := s.ListPartitionStates(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Len(t, states, 4)
	assert.Equal(t, []string{"20200301"}, states[3].Values)
}

func TestListFailedPartitions_PreservesRegistrationOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.RegisterTable(ctx, testTable(), store.TableConfig{}))

	require.NoError(t, s.UpdatePartitionStatus(ctx, "sales", "orders",
		[][]string{{"20200220"}, {"20200218"}}, warehaul.StatusFailed))

	failed, err := s.ListFailedPartitions(ctx, "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"20200218"}, {"20200220"}}, failed)
}

func TestRunLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	run, err := s.RegisterRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.StartedAt.IsZero())
	assert.True(t, run.FinishedAt.IsZero())

	require.NoError(t, s.Heartbeat(ctx, run.ID))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.LastHeartbeat.Before(run.LastHeartbeat))

	require.NoError(t, s.FinishRun(ctx, run.ID))

	got, err = s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, got.FinishedAt.IsZero())
}

func TestRunLifecycle_UnknownRun(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.ErrorIs(t, s.Heartbeat(ctx, "missing"), warehaul.ErrRunNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, "missing"), warehaul.ErrRunNotFound)
	_, err := s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, warehaul.ErrRunNotFound)
}
