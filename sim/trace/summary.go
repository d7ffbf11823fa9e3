package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalEvents  int
	FailedEvents int
	UniqueAgents int
	FirstTime    float64
	LastTime     float64
	LabelCounts  map[string]int // event label → count
	AgentCounts  map[string]int // agent ID → count of events it owned
	VisitedNodes int            // distinct nodes seen after an event
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		LabelCounts: make(map[string]int),
		AgentCounts: make(map[string]int),
	}
	if st == nil || len(st.Events) == 0 {
		return summary
	}

	nodes := make(map[string]bool)
	summary.TotalEvents = len(st.Events)
	summary.FirstTime = st.Events[0].Time
	summary.LastTime = st.Events[len(st.Events)-1].Time
	for _, e := range st.Events {
		if e.Failed() {
			summary.FailedEvents++
		}
		summary.LabelCounts[e.Label]++
		summary.AgentCounts[e.Agent]++
		if e.Node != "" {
			nodes[e.Node] = true
		}
	}
	summary.UniqueAgents = len(summary.AgentCounts)
	summary.VisitedNodes = len(nodes)

	return summary
}
