package media

// State is the lifecycle state of a batch or of a single job unit.
type State string

const (
	StateInitialized State = "Initialized"
	StateReady       State = "Ready"
	StateCreated     State = "Created"
	StateIngesting   State = "Ingesting"
	StateIngested    State = "Ingested"
	StateStarted     State = "Started"
	StateQueued      State = "Queued"
	StateProcessing  State = "Processing"
	StateProcessed   State = "Processed"
	StateCanceled    State = "Canceled"
)

func (s State) String() string {
	return string(s)
}

// Terminal reports whether a unit in this state will not change again.
func (s State) Terminal() bool {
	return s == StateProcessed || s == StateCanceled
}

// JobState is a job state as reported by the remote encoding service.
// Its string form is the status text stored on media records.
type JobState string

const (
	JobQueued     JobState = "Queued"
	JobScheduled  JobState = "Scheduled"
	JobProcessing JobState = "Processing"
	JobFinished   JobState = "Finished"
	JobCanceled   JobState = "Canceled"
	JobCanceling  JobState = "Canceling"
	JobError      JobState = "Error"
)

func (s JobState) String() string {
	return string(s)
}

// UnitState maps a remote job state onto the internal state set.
// The second return is false for states the service may add later; callers
// keep the previous unit state in that case.
func (s JobState) UnitState() (State, bool) {
	switch s {
	case JobQueued, JobScheduled:
		return StateQueued, true
	case JobProcessing:
		return StateProcessing, true
	case JobFinished:
		return StateProcessed, true
	case JobCanceled, JobCanceling, JobError:
		return StateCanceled, true
	default:
		return "", false
	}
}

// Stopped reports whether the remote job has reached a final state and its
// state stream will end.
func (s JobState) Stopped() bool {
	return s == JobFinished || s == JobCanceled || s == JobError
}
