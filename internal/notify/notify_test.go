package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCommitError(t *testing.T) {
	n := CommitError("alice", "demo", "deadbeef", "https://github.com", errors.New("git checkout deadbeef: unknown revision"))

	if n.Type != NotifyError {
		t.Errorf("Type = %v, want NotifyError", n.Type)
	}
	if n.Subject != "alice/demo@deadbeef" {
		t.Errorf("Subject = %q", n.Subject)
	}
	if n.Link != "https://github.com/alice/demo/commit/deadbeef" {
		t.Errorf("Link = %q", n.Link)
	}

	if n := CommitError("a", "b", "c", "", errors.New("x")); n.Link != "" {
		t.Errorf("Link = %q, want empty without web url", n.Link)
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(context.Background(), CommitError("alice", "demo", "deadbeef", "https://github.com", errors.New("boom")))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got.Text != "PEP8bot could not check alice/demo" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(got.Attachments))
	}
	att := got.Attachments[0]
	if att.Color != "danger" || att.Title != "alice/demo@deadbeef" || att.Text != "boom" {
		t.Errorf("attachment = %+v", att)
	}
	if att.TitleLink != "https://github.com/alice/demo/commit/deadbeef" {
		t.Errorf("TitleLink = %q", att.TitleLink)
	}
}

func TestBuildSlackMessage_NoSubject(t *testing.T) {
	msg := BuildSlackMessage(Notification{Title: "hello", Message: "body"})

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(payload), "title_link") {
		t.Errorf("empty link should be omitted: %s", payload)
	}
	if msg.Attachments[0].Color != "#439FE0" {
		t.Errorf("Color = %q", msg.Attachments[0].Color)
	}
}

func TestSlackNotifier_Disabled(t *testing.T) {
	if err := NewSlackNotifier("").Send(context.Background(), Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(context.Background(), Notification{Title: "x"}); err == nil {
		t.Error("expected error for non-200 response")
	}
}

func TestMissingToken(t *testing.T) {
	n := MissingToken("alice", "demo")

	if n.Type != NotifyWarning {
		t.Errorf("Type = %v, want NotifyWarning", n.Type)
	}
	if n.Subject != "alice/demo" {
		t.Errorf("Subject = %q", n.Subject)
	}
	if !strings.Contains(n.Title, "alice") {
		t.Errorf("Title = %q, want owner named", n.Title)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}
