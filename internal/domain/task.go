package domain

import (
	"errors"
	"fmt"
)

// Task is one unit of work pulled off the queue: a repository and the commits to check
type Task struct {
	Username string   `json:"username"`
	Reponame string   `json:"reponame"`
	CloneURL string   `json:"clone_url"`
	Commits  []string `json:"commits"`
}

// Validate checks the fields the worker cannot do without
func (t *Task) Validate() error {
	var errs []error
	if t.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if t.Reponame == "" {
		errs = append(errs, errors.New("reponame is required"))
	}
	if t.CloneURL == "" {
		errs = append(errs, errors.New("clone_url is required"))
	}
	return errors.Join(errs...)
}

// String returns owner/repo
func (t Task) String() string {
	return fmt.Sprintf("%s/%s", t.Username, t.Reponame)
}
