// Package reconcile classifies a task's partitions after validation by
// comparing the row counts both validation actions recorded.
package reconcile

import (
	"github.com/sirupsen/logrus"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/task"
)

// Result is the outcome of reconciling one task's partition group. Both
// lists preserve the partitions' order within the task.
type Result struct {
	Succeeded []warehaul.PartitionMeta
	Failed    []warehaul.PartitionMeta
}

// Reconciler compares source and destination validation results.
type Reconciler struct {
	logger logrus.FieldLogger
}

// New creates a reconciler. Logger may be nil.
func New(logger logrus.FieldLogger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Partitions classifies every partition of the task's group. A partition
// succeeded iff its key carries a row count on both the source and the
// destination side and the counts are equal. A key missing on either side
// is a failure just like a mismatch; the caller gets no distinction.
// Stray keys in the validation results that match none of the task's
// partitions are ignored. Reconciling the same task twice yields the same
// classification.
func (r *Reconciler) Partitions(t *task.Task) Result {
	table := t.Table()
	sourceCounts := t.RowCounts(warehaul.ActionValidateSource, table.Name())
	destCounts := t.RowCounts(warehaul.ActionValidateDest, table.Name())

	var result Result
	for _, partition := range table.Partitions {
		key := partition.Key()
		sourceCount, sourceOK := sourceCounts[key]
		destCount, destOK := destCounts[key]

		if sourceOK && destOK && sourceCount == destCount {
			result.Succeeded = append(result.Succeeded, partition.Clone())
			continue
		}

		result.Failed = append(result.Failed, partition.Clone())
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{
				"task":         t.Name(),
				"partition":    key,
				"source_rows":  sourceCount,
				"source_known": sourceOK,
				"dest_rows":    destCount,
				"dest_known":   destOK,
			}).Warn("partition row counts disagree")
		}
	}

	return result
}
