// Package workspace materializes repositories into scratch directories:
// cloning, checking out individual commits and enumerating source files.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CloneError is returned when a repository cannot be cloned
type CloneError struct {
	URL    string
	Output string
	Err    error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("git clone %s: %s: %v", e.URL, strings.TrimSpace(e.Output), e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// CheckoutError is returned when a commit cannot be checked out
type CheckoutError struct {
	SHA    string
	Output string
	Err    error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("git checkout %s: %s: %v", e.SHA, strings.TrimSpace(e.Output), e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// Manager hands out working copies under a scratch root
type Manager struct {
	scratchDir string
	keep       bool
}

// NewManager creates a new Manager. With keep set, Release leaves working
// copies on disk for inspection.
func NewManager(scratchDir string, keep bool) *Manager {
	return &Manager{
		scratchDir: scratchDir,
		keep:       keep,
	}
}

// WorkingCopy is a clone of one repository owned by a single task
type WorkingCopy struct {
	Root string
}

// Create makes a fresh, uniquely named directory {owner}-{repo}{suffix}.
// The returned root is absolute even when the scratch dir is relative.
func (m *Manager) Create(owner, repo string) (*WorkingCopy, error) {
	// Ensure scratch directory exists
	if err := os.MkdirAll(m.scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}

	dir, err := os.MkdirTemp(m.scratchDir, DirPrefix(owner, repo))
	if err != nil {
		return nil, fmt.Errorf("creating working copy dir: %w", err)
	}

	// Root is absolute: the checker runs inside it and file names must
	// resolve from there too.
	abs, err := filepath.Abs(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("resolving working copy dir: %w", err)
	}

	return &WorkingCopy{Root: abs}, nil
}

// Clone creates a working copy and clones url into it
func (m *Manager) Clone(ctx context.Context, url, owner, repo string) (*WorkingCopy, error) {
	wc, err := m.Create(owner, repo)
	if err != nil {
		return nil, &CloneError{URL: url, Err: err}
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--quiet", url, wc.Root)
	if out, err := cmd.CombinedOutput(); err != nil {
		m.Release(wc)
		return nil, &CloneError{URL: url, Output: string(out), Err: err}
	}

	return wc, nil
}

// Release removes a working copy unless the manager keeps them
func (m *Manager) Release(wc *WorkingCopy) error {
	if m.keep || wc == nil {
		return nil
	}
	return os.RemoveAll(wc.Root)
}

// List returns all working copy paths currently under the scratch root
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.scratchDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			paths = append(paths, filepath.Join(m.scratchDir, e.Name()))
		}
	}
	return paths, nil
}

// Checkout checks out sha inside the working copy. The process working
// directory is switched to the working copy for the duration of the
// command and restored afterwards, also on failure.
func (wc *WorkingCopy) Checkout(ctx context.Context, sha string) error {
	var out []byte
	err := WithDir(wc.Root, func() error {
		var err error
		cmd := exec.CommandContext(ctx, "git", "checkout", "--quiet", "--force", sha, "--")
		out, err = cmd.CombinedOutput()
		return err
	})
	if err != nil {
		return &CheckoutError{SHA: sha, Output: string(out), Err: err}
	}
	return nil
}

// SourceFiles lists files with the given extension under the working copy
func (wc *WorkingCopy) SourceFiles(ext string) iter.Seq2[string, error] {
	return ListSourceFiles(wc.Root, ext)
}

// ConfigFile returns the project-local checker config, or "" if there is none
func (wc *WorkingCopy) ConfigFile() string {
	return ProjectConfig(wc.Root)
}

// ListSourceFiles lazily walks root yielding regular files ending in ext,
// skipping .git directories. Each range over the result walks afresh.
func ListSourceFiles(root, ext string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", err) {
					return fs.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				if d.Name() == ".git" {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), ext) {
				return nil
			}
			if !yield(path, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

// ProjectConfig returns root/setup.cfg when it exists
func ProjectConfig(root string) string {
	path := filepath.Join(root, "setup.cfg")
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return path
	}
	return ""
}

// DirPrefix returns the working copy name prefix for a repository
func DirPrefix(owner, repo string) string {
	r := strings.NewReplacer("/", "_", string(os.PathSeparator), "_", "*", "_")
	return r.Replace(owner) + "-" + r.Replace(repo)
}
