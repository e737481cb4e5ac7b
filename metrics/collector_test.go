package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_CreatesCollectorWithDatabase(t *testing.T) {
	collector := NewCollector("test-db")

	assert.NotNil(t, collector)
	assert.Equal(t, "test-db", collector.database)
}

func TestCollector_IncTasksPlanned(t *testing.T) {
	collector := NewCollector("test-db-coll-1")

	before := testutil.ToFloat64(TasksPlannedTotal.WithLabelValues("test-db-coll-1"))
	collector.IncTasksPlanned(3)
	after := testutil.ToFloat64(TasksPlannedTotal.WithLabelValues("test-db-coll-1"))

	assert.Equal(t, before+3, after)
}

func TestCollector_IncTasksCompleted(t *testing.T) {
	collector := NewCollector("test-db-coll-2")

	before := testutil.ToFloat64(TasksCompletedTotal.WithLabelValues("test-db-coll-2", "succeeded"))
	collector.IncTasksCompleted("succeeded")
	after := testutil.ToFloat64(TasksCompletedTotal.WithLabelValues("test-db-coll-2", "succeeded"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncActionsExecuted(t *testing.T) {
	collector := NewCollector("test-db-coll-3")

	before := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues("test-db-coll-3", "load_data", "succeeded"))
	collector.IncActionsExecuted("load_data", "succeeded")
	after := testutil.ToFloat64(ActionsExecutedTotal.WithLabelValues("test-db-coll-3", "load_data", "succeeded"))

	assert.Equal(t, before+1, after)
}

func TestCollector_IncPartitionsReconciled(t *testing.T) {
	collector := NewCollector("test-db-coll-4")

	before := testutil.ToFloat64(PartitionsReconciledTotal.WithLabelValues("test-db-coll-4", "failed"))
	collector.IncPartitionsReconciled("failed", 2)
	after := testutil.ToFloat64(PartitionsReconciledTotal.WithLabelValues("test-db-coll-4", "failed"))

	assert.Equal(t, before+2, after)
}

func TestCollector_IncHeartbeats(t *testing.T) {
	collector := NewCollector("test-db-coll-5")

	before := testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("test-db-coll-5"))
	collector.IncHeartbeats()
	after := testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("test-db-coll-5"))

	assert.Equal(t, before+1, after)
}

func TestCollector_AddRunningActions(t *testing.T) {
	collector := NewCollector("test-db-coll-6")

	collector.AddRunningActions("source", 2)
	collector.AddRunningActions("source", -1)
	value := testutil.ToFloat64(RunningActions.WithLabelValues("test-db-coll-6", "source"))

	assert.Equal(t, float64(1), value)
}

func TestCollector_ObserveActionDuration(t *testing.T) {
	collector := NewCollector("test-db-coll-7")

	collector.ObserveActionDuration("load_data", 1.5)

	// We can't easily test the exact value of histogram observations,
	// but we can verify that the metric exists and has been updated
	count := testutil.CollectAndCount(ActionDuration)
	assert.Greater(t, count, 0)
}

func TestCollector_MultipleOperations(t *testing.T) {
	collector := NewCollector("test-db-coll-multi")

	collector.IncTasksPlanned(2)
	collector.IncTasksCompleted("failed")
	collector.AddRunningActions("validation", 1)
	collector.ObserveActionDuration("verification", 0.5)

	plannedValue := testutil.ToFloat64(TasksPlannedTotal.WithLabelValues("test-db-coll-multi"))
	completedValue := testutil.ToFloat64(TasksCompletedTotal.WithLabelValues("test-db-coll-multi", "failed"))
	runningValue := testutil.ToFloat64(RunningActions.WithLabelValues("test-db-coll-multi", "validation"))

	assert.Greater(t, plannedValue, float64(0))
	assert.Greater(t, completedValue, float64(0))
	assert.Equal(t, float64(1), runningValue)
}
