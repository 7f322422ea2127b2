// Package checker runs a style checker over source files and collects
// its findings per file.
package checker

import (
	"context"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// Engine produces raw checker events for a set of files
type Engine interface {
	Run(ctx context.Context, dir string, files []string, configFile string, emit func(Event)) error
}

// Checker wires an engine to a collector
type Checker struct {
	engine Engine
}

// New creates a checker backed by engine
func New(engine Engine) *Checker {
	return &Checker{engine: engine}
}

// Check runs the engine over files with dir as working directory. configFile
// may be empty. With no files the engine is not invoked.
func (c *Checker) Check(ctx context.Context, dir string, files []string, configFile string) (*domain.AnalysisResult, error) {
	col := NewCollector()
	if len(files) == 0 {
		return col.Finish(), nil
	}
	if err := c.engine.Run(ctx, dir, files, configFile, col.Handle); err != nil {
		return nil, err
	}
	return col.Finish(), nil
}
