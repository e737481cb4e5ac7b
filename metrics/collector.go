package metrics

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	database string
}

// NewCollector creates a new Collector scoped to a source database.
func NewCollector(database string) *Collector {
	return &Collector{database: database}
}

// IncTasksPlanned adds to the planned tasks counter.
func (c *Collector) IncTasksPlanned(count int) {
	TasksPlannedTotal.WithLabelValues(c.database).Add(float64(count))
}

// IncTasksCompleted increments the completed tasks counter for a terminal
// progress.
func (c *Collector) IncTasksCompleted(progress string) {
	TasksCompletedTotal.WithLabelValues(c.database, progress).Inc()
}

// IncActionsExecuted increments the actions executed counter.
func (c *Collector) IncActionsExecuted(action, result string) {
	ActionsExecutedTotal.WithLabelValues(c.database, action, result).Inc()
}

// IncPartitionsReconciled adds to the reconciled partitions counter for an
// outcome.
func (c *Collector) IncPartitionsReconciled(outcome string, count int) {
	PartitionsReconciledTotal.WithLabelValues(c.database, outcome).Add(float64(count))
}

// IncHeartbeats increments the heartbeats counter.
func (c *Collector) IncHeartbeats() {
	HeartbeatsTotal.WithLabelValues(c.database).Inc()
}

// AddRunningActions moves the in-flight actions gauge for an engine.
func (c *Collector) AddRunningActions(engine string, delta int) {
	RunningActions.WithLabelValues(c.database, engine).Add(float64(delta))
}

// ObserveActionDuration records an action execution duration observation.
func (c *Collector) ObserveActionDuration(action string, seconds float64) {
	ActionDuration.WithLabelValues(c.database, action).Observe(seconds)
}
