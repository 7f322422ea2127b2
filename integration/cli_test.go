//go:build integration

package integration

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestWorker_Usage(t *testing.T) {
	binary := buildBinary(t, "pep8bot-worker")

	for _, args := range [][]string{nil, {"a.toml", "b.toml"}} {
		cmd := exec.Command(binary, args...)
		out, err := cmd.Output()

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			t.Fatalf("args %v: err = %v, want exit code 1", args, err)
		}
		if !strings.Contains(string(out), "usage: pep8bot-worker <config_uri>") {
			t.Errorf("args %v: expected usage in output, got: %s", args, out)
		}
	}
}

func TestCtl_AddUserAndEnqueue(t *testing.T) {
	ctl := buildBinary(t, "pep8bot-ctl")
	mr := miniredis.RunT(t)
	configPath := writeConfig(t, testConfig{
		RedisAddr:  mr.Addr(),
		DBPath:     filepath.Join(t.TempDir(), "test.db"),
		ScratchDir: t.TempDir(),
	})

	out, err := exec.Command(ctl, "add-user", "alice", "--identity", "alice-gh=tok", "--config", configPath).CombinedOutput()
	if err != nil {
		t.Fatalf("add-user failed: %v\n%s", err, out)
	}

	out, err = exec.Command(ctl, "enqueue", "alice", "demo", "https://example.com/demo.git", "abc123", "def456", "--config", configPath).CombinedOutput()
	if err != nil {
		t.Fatalf("enqueue failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "Queued alice/demo with 2 commits") {
		t.Errorf("unexpected enqueue output: %s", out)
	}

	items, _ := mr.List("retaskqueue-commits")
	if len(items) != 1 {
		t.Fatalf("queue has %d items, want 1", len(items))
	}

	out, err = exec.Command(ctl, "commits", "--config", configPath).CombinedOutput()
	if err != nil {
		t.Fatalf("commits failed: %v\n%s", err, out)
	}
	for _, want := range []string{"abc123", "def456", "pending"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("Expected %q in output, got: %s", want, out)
		}
	}
}

func TestWorker_EndToEnd(t *testing.T) {
	worker := buildBinary(t, "pep8bot-worker")
	ctl := buildBinary(t, "pep8bot-ctl")

	mr := miniredis.RunT(t)
	github, posted := startGitHub(t)
	repo, sha := setupGitRepo(t)
	scratch := t.TempDir()

	configPath := writeConfig(t, testConfig{
		RedisAddr:  mr.Addr(),
		GitHubAPI:  github.URL,
		Checker:    fakePycodestyle(t),
		DBPath:     filepath.Join(t.TempDir(), "test.db"),
		ScratchDir: scratch,
	})

	for _, args := range [][]string{
		{"add-user", "alice", "--identity", "alice-old", "--identity", "alice-gh=linked-token"},
		{"enqueue", "alice", "demo", repo, sha},
	} {
		args = append(args, "--config", configPath)
		if out, err := exec.Command(ctl, args...).CombinedOutput(); err != nil {
			t.Fatalf("%s failed: %v\n%s", args[0], err, out)
		}
	}

	var logs bytes.Buffer
	cmd := exec.Command(worker, configPath)
	cmd.Stderr = &logs
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case st := <-posted:
		if st.Path != "/repos/alice/demo/statuses/"+sha {
			t.Errorf("status path = %s", st.Path)
		}
		if st.State != "failure" || st.Description != "PEP8bot detected 1 errors" {
			t.Errorf("status = %+v", st)
		}
		if st.Auth != "Bearer linked-token" {
			t.Errorf("Authorization = %q, want linked token", st.Auth)
		}
	case <-time.After(30 * time.Second):
		cmd.Process.Kill()
		t.Fatalf("no status posted\n%s", logs.String())
	}

	// give the worker time to commit and return to waiting
	time.Sleep(500 * time.Millisecond)
	cmd.Process.Signal(os.Interrupt)
	if err := cmd.Wait(); err != nil {
		t.Fatalf("worker exited with %v, want clean exit\n%s", err, logs.String())
	}

	out, err := exec.Command(ctl, "show", sha, "--config", configPath).CombinedOutput()
	if err != nil {
		t.Fatalf("show failed: %v\n%s", err, out)
	}
	want := "pkg/bad.py:1</a>:2: E225 missing whitespace around operator"
	if !strings.Contains(string(out), want) {
		t.Errorf("Expected %q in report, got: %s", want, out)
	}

	out, err = exec.Command(ctl, "runs", "--config", configPath).CombinedOutput()
	if err != nil {
		t.Fatalf("runs failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "completed") || !strings.Contains(string(out), "1/1") {
		t.Errorf("Expected completed run in output, got: %s", out)
	}

	entries, _ := os.ReadDir(scratch)
	if len(entries) != 0 {
		t.Errorf("working copy not removed, found %d entries", len(entries))
	}
}
