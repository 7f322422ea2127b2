//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildBinary builds ../cmd/name into a temp dir and returns its path
func buildBinary(t *testing.T, name string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), name)
	cmd := exec.Command("go", "build", "-o", out, "../cmd/"+name)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build %s: %v\n%s", name, err, output)
	}
	return out
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %s", args, out)
	}
	return strings.TrimSpace(string(out))
}

// setupGitRepo creates a repository with a single commit holding one
// Python file and returns its path and the commit sha
func setupGitRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	runGit(t, dir, "init", "--quiet")
	runGit(t, dir, "config", "user.email", "test@test.com")
	runGit(t, dir, "config", "user.name", "Test")

	os.MkdirAll(filepath.Join(dir, "pkg"), 0755)
	os.WriteFile(filepath.Join(dir, "pkg", "bad.py"), []byte("x=1\n"), 0644)
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "--quiet", "-m", "Initial commit")

	return dir, runGit(t, dir, "rev-parse", "HEAD")
}

// fakePycodestyle writes a stand-in checker reporting one E225 per file
func fakePycodestyle(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pycodestyle")
	script := `#!/bin/sh
for f in "$@"; do
  case "$f" in
    --*) ;;
    *) echo "$f:1:2: E225 missing whitespace around operator" ;;
  esac
done
exit 1
`
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// postedStatus is the body of a commit status request
type postedStatus struct {
	Path        string
	Auth        string
	State       string `json:"state"`
	Description string `json:"description"`
	Context     string `json:"context"`
}

// startGitHub serves the commit status endpoint and forwards every request
func startGitHub(t *testing.T) (*httptest.Server, <-chan postedStatus) {
	t.Helper()
	posted := make(chan postedStatus, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var st postedStatus
		json.NewDecoder(r.Body).Decode(&st)
		st.Path = r.URL.Path
		st.Auth = r.Header.Get("Authorization")
		posted <- st
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)
	return server, posted
}

type testConfig struct {
	RedisAddr  string
	GitHubAPI  string
	Checker    string
	DBPath     string
	ScratchDir string
}

// writeConfig writes a worker config file and returns its path
func writeConfig(t *testing.T, c testConfig) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")

	config := `[worker]
scratch_dir = "` + c.ScratchDir + `"
sleep_interval = "0s"
queue_name = "commits"

[queue]
redis_addr = "` + c.RedisAddr + `"
poll_interval = "1s"

[database]
path = "` + c.DBPath + `"

[github]
api_url = "` + c.GitHubAPI + `"

[checker]
command = "` + c.Checker + `"

[log]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}
