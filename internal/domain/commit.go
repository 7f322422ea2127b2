package domain

import "time"

// CommitRecord is the persisted check state of a single commit
type CommitRecord struct {
	SHA         string
	Username    string
	Reponame    string
	Status      Status
	ErrorCount  int
	ErrorReport string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Outcome is the result of processing one commit. Status, count and report
// always travel together so a record is never half updated.
type Outcome struct {
	Status      Status
	ErrorCount  int
	ErrorReport string
}

// ErrorOutcome is the outcome recorded when processing a commit failed
func ErrorOutcome() Outcome {
	return Outcome{Status: StatusError}
}

// Apply overwrites the record's check state with o
func (c *CommitRecord) Apply(o Outcome) {
	c.Status = o.Status
	c.ErrorCount = o.ErrorCount
	c.ErrorReport = o.ErrorReport
}
