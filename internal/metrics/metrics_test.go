package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

func TestObserveCommit(t *testing.T) {
	m := New()
	m.ObserveCommit(domain.StatusFailure, 2*time.Second, 3)
	m.ObserveCommit(domain.StatusSuccess, time.Second, 0)
	m.ObserveCommit(domain.StatusFailure, time.Second, 2)

	if got := testutil.ToFloat64(m.commits.WithLabelValues("failure")); got != 2 {
		t.Errorf("failure commits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.findings); got != 5 {
		t.Errorf("findings = %v, want 5", got)
	}
}

func TestObserveTask(t *testing.T) {
	m := New()
	m.ObserveTask(TaskCompleted)
	m.ObserveTask(TaskFailed)
	m.ObserveTask(TaskCompleted)

	if got := testutil.ToFloat64(m.tasks.WithLabelValues(TaskCompleted)); got != 2 {
		t.Errorf("completed tasks = %v, want 2", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveTask(TaskFailed)
	m.ObserveCommit(domain.StatusError, time.Second, 0)
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveCommit(domain.StatusSuccess, time.Second, 0)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `pep8bot_commits_total{status="success"} 1`) {
		t.Errorf("metrics output missing commit counter:\n%s", body)
	}
}
