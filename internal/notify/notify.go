// Package notify tells operators about commits the bot could not check.
package notify

import (
	"context"
	"fmt"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyWarning NotificationType = iota
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	Subject string // Optional owner/repo@sha reference
	Link    string // Optional commit URL
}

// CommitError builds the notification sent when a commit ends in error
func CommitError(owner, repo, sha, webURL string, err error) Notification {
	n := Notification{
		Title:   fmt.Sprintf("PEP8bot could not check %s/%s", owner, repo),
		Message: err.Error(),
		Type:    NotifyError,
		Subject: fmt.Sprintf("%s/%s@%s", owner, repo, sha),
	}
	if webURL != "" {
		n.Link = fmt.Sprintf("%s/%s/%s/commit/%s", webURL, owner, repo, sha)
	}
	return n
}

// MissingToken builds the warning sent when a task's owner has no access
// token, so its commit statuses will likely be rejected.
func MissingToken(owner, repo string) Notification {
	return Notification{
		Title:   fmt.Sprintf("PEP8bot has no access token for %s", owner),
		Message: fmt.Sprintf("Commit statuses for %s/%s are posted unauthenticated. Link an identity with a token.", owner, repo),
		Type:    NotifyWarning,
		Subject: fmt.Sprintf("%s/%s", owner, repo),
	}
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, n Notification) error { return nil }
