// Package trace provides event-trace recording for post-run analysis of a
// simulation. This package has no dependencies on sim/; it stores pure data types.
package trace

// EventRecord captures one drained event.
type EventRecord struct {
	Time  float64 `json:"time"`
	Seq   uint64  `json:"seq"`
	Label string  `json:"label"`
	Agent string  `json:"agent"`
	// Node is the owning agent's node after the callback ran ("" if unplaced).
	Node string `json:"node"`
	// Err is the callback's error text, empty on success.
	Err string `json:"error,omitempty"`
}

// Failed reports whether the event's callback returned an error.
func (r EventRecord) Failed() bool { return r.Err != "" }
