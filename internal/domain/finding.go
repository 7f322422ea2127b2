package domain

// Finding is a single style violation. Column is the checker's raw 0-based offset.
type Finding struct {
	Line     int
	Column   int
	Code     string
	Message  string
	Filename string
}

// AnalysisResult is what the style checker produced for one checkout
type AnalysisResult struct {
	TotalErrors int
	// LineOffset is added to every finding's line when displayed
	LineOffset int
	Findings   []Finding
}

// Status maps the result to success or failure
func (r *AnalysisResult) Status() Status {
	if r.TotalErrors > 0 {
		return StatusFailure
	}
	return StatusSuccess
}
