package trace

// TraceLevel controls the verbosity of event tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEvents captures every drained event.
	TraceLevelEvents TraceLevel = "events"
	// TraceLevelErrors captures only events whose callback failed.
	TraceLevelErrors TraceLevel = "errors"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:   true,
	TraceLevelEvents: true,
	TraceLevelErrors: true,
	"":               true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects event records during a simulation.
type SimulationTrace struct {
	Config TraceConfig   `json:"-"`
	Events []EventRecord `json:"events"`
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Events: make([]EventRecord, 0),
	}
}

// RecordEvent appends record when the trace level asks for it. Safe on a nil trace.
func (st *SimulationTrace) RecordEvent(record EventRecord) {
	if st == nil {
		return
	}
	switch st.Config.Level {
	case TraceLevelEvents:
	case TraceLevelErrors:
		if !record.Failed() {
			return
		}
	default:
		return
	}
	st.Events = append(st.Events, record)
}
