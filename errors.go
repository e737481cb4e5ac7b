package warehaul

import "errors"

var (
	// ErrInvalidGroupSize indicates a table's resolved partition group size
	// is not positive. Planning aborts for the table without producing
	// partial tasks.
	ErrInvalidGroupSize = errors.New("invalid partition group size")

	// ErrTableNotFound indicates the metadata store has no record of the
	// requested table.
	ErrTableNotFound = errors.New("table not found")

	// ErrRunNotFound indicates the metadata store has no record of the
	// requested migration run.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoEngine indicates no execution engine is registered for an
	// action's affinity.
	ErrNoEngine = errors.New("no engine registered for affinity")
)
