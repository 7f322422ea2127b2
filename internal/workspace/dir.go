package workspace

import (
	"fmt"
	"os"
)

// Pushd changes the process working directory to dir and returns a func
// that changes it back. The working directory is process-wide state, so
// callers must not use this concurrently.
func Pushd(dir string) (restore func() error, err error) {
	saved, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("chdir %s: %w", dir, err)
	}
	return func() error { return os.Chdir(saved) }, nil
}

// WithDir runs fn with dir as the working directory, restoring the
// previous directory on every exit path including panics.
func WithDir(dir string, fn func() error) (err error) {
	restore, err := Pushd(dir)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := restore(); rerr != nil && err == nil {
			err = fmt.Errorf("restoring working dir: %w", rerr)
		}
	}()
	return fn()
}
