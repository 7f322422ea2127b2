package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		raw     string
		want    domain.Identity
		wantErr bool
	}{
		{"alice-gh=tok", domain.Identity{Name: "alice-gh", AccessToken: "tok"}, false},
		{"alice-old", domain.Identity{Name: "alice-old"}, false},
		{"a=b=c", domain.Identity{Name: "a", AccessToken: "b=c"}, false},
		{"=tok", domain.Identity{}, true},
	}

	for _, tt := range tests {
		got, err := parseIdentity(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIdentity(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseIdentity(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestWriteCommits(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recs := []*domain.CommitRecord{
		{SHA: "0123456789abcdef", Username: "alice", Reponame: "demo", Status: domain.StatusFailure, ErrorCount: 1200, UpdatedAt: now.Add(-2 * time.Hour)},
		{SHA: "abc", Username: "bob", Reponame: "lib", Status: domain.StatusSuccess, UpdatedAt: now},
	}

	var buf bytes.Buffer
	if err := writeCommits(&buf, recs, now); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{"0123456789 ", "alice/demo", "1,200", "2 hours ago", "failure", "bob/lib"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0123456789abcdef") {
		t.Error("sha should be shortened")
	}
}

func TestWriteRuns(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-time.Minute)
	runs := []*domain.Run{{
		ID:           "5f1c2d3e-0000-0000-0000-000000000000",
		Username:     "alice",
		Reponame:     "demo",
		CommitsTotal: 3,
		CommitsDone:  1,
		Status:       domain.RunFailed,
		Error:        "checking deadbeef: git checkout\nmore",
		StartedAt:    now.Add(-90 * time.Second),
		FinishedAt:   &finished,
	}}

	var buf bytes.Buffer
	if err := writeRuns(&buf, runs, now); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{"5f1c2d3e-0", "1/3", "30s", "failed", "checking deadbeef: git checkout"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "more") {
		t.Error("only the first error line should be shown")
	}
}

func TestRenderStatus(t *testing.T) {
	out := renderStatus("retaskqueue-commits", 4, map[domain.Status]int{
		domain.StatusSuccess: 10,
		domain.StatusError:   1,
	})

	for _, want := range []string{"retaskqueue-commits: 4 waiting", "0 pending", "10 success", "1 error"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSplitActive(t *testing.T) {
	scratch := t.TempDir()
	a := filepath.Join(scratch, "alice-demo1")
	b := filepath.Join(scratch, "alice-demo2")
	c := filepath.Join(scratch, "bob-lib3")

	idle, inUse := splitActive([]string{a, b, c}, []string{b, "/elsewhere/x"})

	if len(inUse) != 1 || inUse[0] != b {
		t.Errorf("inUse = %v, want [%s]", inUse, b)
	}
	if len(idle) != 2 || idle[0] != a || idle[1] != c {
		t.Errorf("idle = %v, want [%s %s]", idle, a, c)
	}
}

func TestSplitActive_RelativeScratchDir(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)

	idle, inUse := splitActive([]string{"scratch/alice-demo1"}, []string{filepath.Join(base, "scratch", "alice-demo1")})
	if len(idle) != 0 || len(inUse) != 1 {
		t.Errorf("idle = %v, inUse = %v, want the relative path matched as in use", idle, inUse)
	}
}
