package checker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// fakeChecker writes a shell script that logs its arguments to argsFile and
// prints one E501 finding per file argument, exiting with exitCode.
func fakeChecker(t *testing.T, exitCode int) (script, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	script = filepath.Join(dir, "pycodestyle")
	argsFile = filepath.Join(dir, "args.log")

	body := `#!/bin/sh
echo "$@" >> "` + argsFile + `"
for f in "$@"; do
  case "$f" in
    --*) ;;
    *) echo "$f:1:80: E501 line too long (90 > 79 characters)"
       echo "$f:3:1: W391 blank line at end of file" ;;
  esac
done
echo "some warning" >&2
exit ` + string(rune('0'+exitCode)) + `
`
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	return script, argsFile
}

func readInvocations(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		path string
		want Event
	}{
		{
			line: "./pkg/mod.py:12:5: E225 missing whitespace around operator",
			ok:   true,
			path: "./pkg/mod.py",
			want: Event{Kind: EventFinding, Line: 12, Column: 4, Code: "E225", Message: "missing whitespace around operator"},
		},
		{
			line: "c:/odd:name.py:1:1: W291 trailing whitespace",
			ok:   true,
			path: "c:/odd:name.py",
			want: Event{Kind: EventFinding, Line: 1, Column: 0, Code: "W291", Message: "trailing whitespace"},
		},
		{line: "not a finding", ok: false},
		{line: "a.py:1: E1 missing column", ok: false},
	}

	for _, tt := range tests {
		path, ev, ok := parseLine(tt.line)
		if ok != tt.ok {
			t.Errorf("parseLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if path != tt.path || ev != tt.want {
			t.Errorf("parseLine(%q) = %q, %+v; want %q, %+v", tt.line, path, ev, tt.path, tt.want)
		}
	}
}

func TestPyCodeStyle_Check(t *testing.T) {
	script, argsFile := fakeChecker(t, 1)
	c := New(NewPyCodeStyle(script, 0))

	res, err := c.Check(context.Background(), t.TempDir(), []string{"a.py", "b.py"}, "")
	if err != nil {
		t.Fatal(err)
	}

	if res.TotalErrors != 4 {
		t.Errorf("TotalErrors = %d, want 4", res.TotalErrors)
	}
	if res.Status() != domain.StatusFailure {
		t.Errorf("Status() = %s, want failure", res.Status())
	}
	want := []domain.Finding{
		{Line: 1, Column: 79, Code: "E501", Message: "line too long (90 > 79 characters)", Filename: "a.py"},
		{Line: 3, Column: 0, Code: "W391", Message: "blank line at end of file", Filename: "a.py"},
		{Line: 1, Column: 79, Code: "E501", Message: "line too long (90 > 79 characters)", Filename: "b.py"},
		{Line: 3, Column: 0, Code: "W391", Message: "blank line at end of file", Filename: "b.py"},
	}
	for i := range want {
		if res.Findings[i] != want[i] {
			t.Errorf("finding %d = %+v, want %+v", i, res.Findings[i], want[i])
		}
	}

	calls := readInvocations(t, argsFile)
	if len(calls) != 1 || calls[0] != "--format=default a.py b.py" {
		t.Errorf("invocations = %q", calls)
	}
}

func TestPyCodeStyle_Batches(t *testing.T) {
	script, argsFile := fakeChecker(t, 0)
	c := New(NewPyCodeStyle(script, 2))

	res, err := c.Check(context.Background(), t.TempDir(), []string{"a.py", "b.py", "c.py"}, "/tmp/setup.cfg")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalErrors != 6 {
		t.Errorf("TotalErrors = %d, want 6", res.TotalErrors)
	}

	calls := readInvocations(t, argsFile)
	want := []string{
		"--format=default --config=/tmp/setup.cfg a.py b.py",
		"--format=default --config=/tmp/setup.cfg c.py",
	}
	if len(calls) != len(want) {
		t.Fatalf("invocations = %q, want %q", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("invocation %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestPyCodeStyle_NoFiles(t *testing.T) {
	script, argsFile := fakeChecker(t, 0)
	c := New(NewPyCodeStyle(script, 0))

	res, err := c.Check(context.Background(), t.TempDir(), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalErrors != 0 {
		t.Errorf("TotalErrors = %d, want 0", res.TotalErrors)
	}
	if calls := readInvocations(t, argsFile); len(calls) != 0 {
		t.Errorf("checker should not run without files, got %q", calls)
	}
}

func TestPyCodeStyle_AbnormalExit(t *testing.T) {
	script, _ := fakeChecker(t, 2)
	c := New(NewPyCodeStyle(script, 0))

	_, err := c.Check(context.Background(), t.TempDir(), []string{"a.py"}, "")
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("error = %v, want *AnalysisError", err)
	}
	if analysisErr.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", analysisErr.ExitCode)
	}
	if !strings.Contains(analysisErr.Stderr, "some warning") {
		t.Errorf("Stderr = %q, want captured stderr", analysisErr.Stderr)
	}
}

func TestPyCodeStyle_MissingCommand(t *testing.T) {
	c := New(NewPyCodeStyle(filepath.Join(t.TempDir(), "nope"), 0))

	_, err := c.Check(context.Background(), t.TempDir(), []string{"a.py"}, "")
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("error = %v, want *AnalysisError", err)
	}
}

type fakeEngine struct {
	events []Event
	err    error
	calls  int
}

func (f *fakeEngine) Run(ctx context.Context, dir string, files []string, configFile string, emit func(Event)) error {
	f.calls++
	for _, ev := range f.events {
		emit(ev)
	}
	return f.err
}

func TestChecker_EngineError(t *testing.T) {
	boom := errors.New("boom")
	c := New(&fakeEngine{err: boom})

	if _, err := c.Check(context.Background(), "", []string{"a.py"}, ""); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
