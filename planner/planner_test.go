package planner

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

var taskNamePattern = regexp.MustCompile(`^sales\.orders\.[A-Z0-9]{4}\.\d+$`)

func partitionedTable(n int) warehaul.TableMeta {
	meta := warehaul.TableMeta{
		Database:         "sales",
		Table:            "orders",
		PartitionColumns: []string{"ds"},
	}
	for i := 0; i < n; i++ {
		meta.Partitions = append(meta.Partitions, warehaul.PartitionMeta{
			Values: []string{fmt.Sprintf("2020021%d", i)},
		})
	}
	return meta
}

func TestPlan_NonPartitionedTable(t *testing.T) {
	p := New(Config{})
	meta := warehaul.TableMeta{Database: "sales", Table: "lookup"}

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{meta}, warehaul.AllActions)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, "sales.lookup", tasks[0].Name())

	actions := tasks[0].Actions()
	assert.NotContains(t, actions, warehaul.ActionAddPartitions)
	assert.Contains(t, actions, warehaul.ActionCreateTable)
	assert.Contains(t, actions, warehaul.ActionLoad)
	assert.Len(t, actions, len(warehaul.AllActions)-1)
}

func TestPlan_PartitionedTableWithoutPartitions(t *testing.T) {
	p := New(Config{})
	meta := partitionedTable(0)

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{meta}, warehaul.AllActions)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.Equal(t, "sales.orders", tasks[0].Name())
	assert.Equal(t, []warehaul.Action{warehaul.ActionCreateTable}, tasks[0].Actions())
}

func TestPlan_DefaultGroupSizeIsNoSplitting(t *testing.T) {
	p := New(Config{})
	meta := partitionedTable(5)

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{meta}, warehaul.AllActions)
	require.NoError(t, err)

	require.Len(t, tasks, 1)
	assert.True(t, taskNamePattern.MatchString(tasks[0].Name()), "unexpected task name %q", tasks[0].Name())
	assert.Len(t, tasks[0].Table().Partitions, 5)
	assert.Len(t, tasks[0].Actions(), len(warehaul.AllActions))
}

func TestPlan_GroupSizeSplitsConsecutively(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	mockStore.GetTableConfigFunc = func(ctx context.Context, database, table string) (store.TableConfig, error) {
		return store.TableConfig{PartitionGroupSize: 2}, nil
	}
	p := New(Config{Store: mockStore})
	meta := partitionedTable(5)

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{meta}, warehaul.AllActions)
	require.NoError(t, err)

	// ceil(5/2) groups, the last truncated to the remainder.
	require.Len(t, tasks, 3)
	assert.Len(t, tasks[0].Table().Partitions, 2)
	assert.Len(t, tasks[1].Table().Partitions, 2)
	assert.Len(t, tasks[2].Table().Partitions, 1)

	// Groups are consecutive slices of the input, no reordering.
	var flattened []string
	for _, tk := range tasks {
		for _, part := range tk.Table().Partitions {
			flattened = append(flattened, part.Key())
		}
	}
	var want []string
	for _, part := range meta.Partitions {
		want = append(want, part.Key())
	}
	assert.Equal(t, want, flattened)
}

func TestPlan_GroupTasksShareTablePrefix(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	mockStore.GetTableConfigFunc = func(ctx context.Context, database, table string) (store.TableConfig, error) {
		return store.TableConfig{PartitionGroupSize: 1}, nil
	}
	p := New(Config{Store: mockStore})
	meta := partitionedTable(3)

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{meta}, warehaul.AllActions)
	require.NoError(t, err)

	require.Len(t, tasks, 3)
	prefix := ""
	for i, tk := range tasks {
		require.True(t, taskNamePattern.MatchString(tk.Name()), "unexpected task name %q", tk.Name())
		assert.True(t, strings.HasSuffix(tk.Name(), fmt.Sprintf(".%d", i)))
		if i == 0 {
			prefix = tk.Name()[:strings.LastIndex(tk.Name(), ".")]
			continue
		}
		assert.True(t, strings.HasPrefix(tk.Name(), prefix+"."))
	}
}

func TestPlan_NonPositiveGroupSizeFallsBackToOneGroup(t *testing.T) {
	for _, size := range []int{-1, 0} {
		mockStore := store.NewMockMetaStore()
		mockStore.GetTableConfigFunc = func(ctx context.Context, database, table string) (store.TableConfig, error) {
			return store.TableConfig{PartitionGroupSize: size}, nil
		}
		p := New(Config{Store: mockStore})

		tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{partitionedTable(3)}, warehaul.AllActions)

		require.NoError(t, err, "configured size %d", size)
		require.Len(t, tasks, 1, "configured size %d", size)
		assert.Len(t, tasks[0].Table().Partitions, 3)
	}
}

func TestPlan_ClonesDoNotAliasInput(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	mockStore.GetTableConfigFunc = func(ctx context.Context, database, table string) (store.TableConfig, error) {
		return store.TableConfig{PartitionGroupSize: 1}, nil
	}
	p := New(Config{Store: mockStore})
	meta := partitionedTable(2)

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{meta}, warehaul.AllActions)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	meta.Partitions[0].Values[0] = "mutated"
	meta.PartitionColumns[0] = "mutated"

	assert.Equal(t, "20200210", tasks[0].Table().Partitions[0].Values[0])
	assert.Equal(t, []string{"ds"}, tasks[0].Table().PartitionColumns)
}

func TestPlan_MixedTables(t *testing.T) {
	mockStore := store.NewMockMetaStore()
	p := New(Config{Store: mockStore})
	flat := warehaul.TableMeta{Database: "sales", Table: "lookup"}
	parted := partitionedTable(2)

	tasks, err := p.Plan(context.Background(), []warehaul.TableMeta{flat, parted}, warehaul.AllActions)
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, "sales.lookup", tasks[0].Name())
	assert.True(t, taskNamePattern.MatchString(tasks[1].Name()))

	// Config is resolved per table through the store.
	require.Len(t, mockStore.GetTableConfigCalls, 2)
	assert.Equal(t, "lookup", mockStore.GetTableConfigCalls[0].Table)
	assert.Equal(t, "orders", mockStore.GetTableConfigCalls[1].Table)
}
