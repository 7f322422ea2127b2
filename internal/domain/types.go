package domain

// Status is the check outcome of a commit, as stored and as reported to the hosting service
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// Valid reports whether s is one of the four known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailure, StatusError:
		return true
	}
	return false
}

// RunStatus represents the execution state of a task run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)
