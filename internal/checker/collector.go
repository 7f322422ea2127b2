package checker

import "github.com/hochfrequenz/pep8bot/internal/domain"

// EventKind distinguishes the two kinds of raw checker events
type EventKind int

const (
	// EventFile signals that the checker moved on to a new file
	EventFile EventKind = iota
	// EventFinding carries one violation in the current file
	EventFinding
)

// Event is a single item of the checker's raw output stream
type Event struct {
	Kind     EventKind
	Filename string
	Line     int
	Column   int
	Code     string
	Message  string
}

// Collector buffers findings until the file they belong to is closed.
// Findings are only tagged with a filename when the next file boundary
// (or the end of the run) arrives.
type Collector struct {
	current string
	pending []domain.Finding
	result  domain.AnalysisResult
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Handle consumes one event
func (c *Collector) Handle(ev Event) {
	switch ev.Kind {
	case EventFile:
		c.flush()
		c.current = ev.Filename
	case EventFinding:
		c.pending = append(c.pending, domain.Finding{
			Line:    ev.Line,
			Column:  ev.Column,
			Code:    ev.Code,
			Message: ev.Message,
		})
	}
}

func (c *Collector) flush() {
	for _, f := range c.pending {
		f.Filename = c.current
		c.result.Findings = append(c.result.Findings, f)
	}
	c.result.TotalErrors += len(c.pending)
	c.pending = c.pending[:0]
}

// Finish flushes the last file and returns the collected result
func (c *Collector) Finish() *domain.AnalysisResult {
	c.flush()
	res := c.result
	return &res
}
