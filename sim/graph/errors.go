package graph

import "fmt"

// GraphIntegrityError reports malformed graph input. It is raised at
// construction and is fatal to a run.
type GraphIntegrityError struct {
	Reason string
}

func (e *GraphIntegrityError) Error() string {
	return "graph integrity: " + e.Reason
}

// NoPathError reports that no path connects From to To.
type NoPathError struct {
	From NodeID
	To   NodeID
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("no path from %q to %q", e.From, e.To)
}
