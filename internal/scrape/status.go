package scrape

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
	JobStatusStopped   JobStatus = "stopped"
)

// Terminal reports whether no further transition is legal from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled, JobStatusStopped:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the move from s to next is legal.
// Terminal states admit nothing; canceled is reachable from any non-terminal
// state because hard reset discards queued work and forces active jobs over.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusCanceled
	case JobStatusRunning:
		switch next {
		case JobStatusPaused, JobStatusSucceeded, JobStatusFailed, JobStatusCanceled, JobStatusStopped:
			return true
		}
	case JobStatusPaused:
		switch next {
		case JobStatusRunning, JobStatusStopped, JobStatusCanceled:
			return true
		}
	}
	return false
}

// RunStatus is the outcome of a single fetch attempt.
type RunStatus string

// Run status values persisted in the run store. A not-modified run is the
// cheap record kept when a conditional feed fetch returned 304.
const (
	RunStatusSucceeded   RunStatus = "succeeded"
	RunStatusFailed      RunStatus = "failed"
	RunStatusNotModified RunStatus = "not_modified"
)

// EngineStatus is the coarse control-plane state.
type EngineStatus string

// Engine status values. Exactly one EngineState exists at all times.
const (
	EngineIdle    EngineStatus = "idle"
	EngineRunning EngineStatus = "running"
	EnginePaused  EngineStatus = "paused"
)
