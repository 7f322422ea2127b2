// Package status reports commit check results to the hosting service.
package status

import (
	"context"
	"fmt"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// DefaultContext labels the bot's statuses on a commit
const DefaultContext = "pep8bot"

// Reporter posts a commit status
type Reporter interface {
	PostStatus(ctx context.Context, owner, repo, sha string, st domain.Status, token, description string) error
}

// Describe returns the human description shown next to a status
func Describe(st domain.Status, errorCount int) string {
	switch st {
	case domain.StatusSuccess:
		return `PEP8bot says "OK"`
	case domain.StatusFailure:
		return fmt.Sprintf("PEP8bot detected %d errors", errorCount)
	case domain.StatusPending:
		return "Still waiting on PEP8bot check"
	default:
		return "PEP8bot ran into trouble"
	}
}

// StatusReportError is returned when the hosting service could not be
// reached or rejected the status
type StatusReportError struct {
	Owner  string
	Repo   string
	SHA    string
	Status domain.Status
	Err    error
}

func (e *StatusReportError) Error() string {
	return fmt.Sprintf("posting %s status for %s/%s@%s: %v", e.Status, e.Owner, e.Repo, e.SHA, e.Err)
}

func (e *StatusReportError) Unwrap() error { return e.Err }
