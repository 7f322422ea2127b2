package domain

import "time"

// Run records one attempt at processing a dequeued task
type Run struct {
	ID           string
	Username     string
	Reponame     string
	CloneURL     string
	WorkingDir   string
	CommitsTotal int
	CommitsDone  int
	Status       RunStatus
	Error        string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Duration returns how long the run took, or has taken so far
func (r *Run) Duration(now time.Time) time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}
