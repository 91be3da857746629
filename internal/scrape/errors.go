package scrape

import "errors"

// Sentinel errors shared across stores and the engine.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on duplicate creation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrAlreadyTerminal rejects writes to a job in a terminal status.
	ErrAlreadyTerminal = errors.New("job already terminal")
	// ErrIllegalTransition rejects a job status move the state machine forbids.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrNoSources fails a job that resolves to zero fetchable sources.
	ErrNoSources = errors.New("no resolvable sources")
	// ErrInvalidSchedule rejects a malformed recurrence definition.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrJobStopped is observed by the orchestrator at an iteration boundary
	// after a stop command.
	ErrJobStopped = errors.New("job stopped")
)
