package ir

// Version constants for the trace schema and engine.
const (
	// TraceVersion is the recorded trace schema version.
	TraceVersion = "1"

	// EngineVersion is the rxmodel engine version.
	EngineVersion = "0.1.0"
)
