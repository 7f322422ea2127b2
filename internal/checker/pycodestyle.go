package checker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// DefaultBatchSize bounds the number of files passed to one invocation
const DefaultBatchSize = 200

// AnalysisError is returned when the checker could not be run or exited abnormally
type AnalysisError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AnalysisError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// pycodestyle --format=default prints path:row:col: CODE text
var findingLine = regexp.MustCompile(`^(.*):(\d+):(\d+): ([A-Z]\d+) (.*)$`)

// PyCodeStyle runs the pycodestyle command line tool
type PyCodeStyle struct {
	Command   string
	BatchSize int
}

// NewPyCodeStyle creates an engine invoking command, defaulting to pycodestyle
func NewPyCodeStyle(command string, batchSize int) *PyCodeStyle {
	if command == "" {
		command = "pycodestyle"
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PyCodeStyle{Command: command, BatchSize: batchSize}
}

// Run checks files in batches, emitting a file event whenever the reported
// path changes and a finding event per violation.
func (p *PyCodeStyle) Run(ctx context.Context, dir string, files []string, configFile string, emit func(Event)) error {
	current := ""
	started := false
	for start := 0; start < len(files); start += p.BatchSize {
		end := min(start+p.BatchSize, len(files))
		err := p.runBatch(ctx, dir, files[start:end], configFile, func(path string, ev Event) {
			if !started || path != current {
				emit(Event{Kind: EventFile, Filename: path})
				current, started = path, true
			}
			emit(ev)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *PyCodeStyle) args(files []string, configFile string) []string {
	args := []string{"--format=default"}
	if configFile != "" {
		args = append(args, "--config="+configFile)
	}
	return append(args, files...)
}

func (p *PyCodeStyle) runBatch(ctx context.Context, dir string, files []string, configFile string, emit func(string, Event)) error {
	cmd := exec.CommandContext(ctx, p.Command, p.args(files, configFile)...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &AnalysisError{Command: p.Command, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return &AnalysisError{Command: p.Command, Err: err}
	}

	parseErr := parseOutput(stdout, emit)
	// Drain so the process never blocks on a full pipe
	io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		// Exit status 1 means violations were found
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			code := 0
			if exitErr != nil {
				code = exitErr.ExitCode()
			}
			return &AnalysisError{Command: p.Command, ExitCode: code, Stderr: stderr.String(), Err: err}
		}
	}
	if parseErr != nil {
		return &AnalysisError{Command: p.Command, Err: fmt.Errorf("reading output: %w", parseErr)}
	}
	return nil
}

// parseOutput reads checker output, calling emit for every finding line.
// Lines in any other shape are ignored.
func parseOutput(r io.Reader, emit func(string, Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		path, ev, ok := parseLine(scanner.Text())
		if ok {
			emit(path, ev)
		}
	}
	return scanner.Err()
}

func parseLine(line string) (string, Event, bool) {
	m := findingLine.FindStringSubmatch(line)
	if m == nil {
		return "", Event{}, false
	}
	row, err := strconv.Atoi(m[2])
	if err != nil {
		return "", Event{}, false
	}
	col, err := strconv.Atoi(m[3])
	if err != nil {
		return "", Event{}, false
	}
	return m[1], Event{
		Kind:    EventFinding,
		Line:    row,
		Column:  max(col-1, 0),
		Code:    m[4],
		Message: m[5],
	}, true
}
