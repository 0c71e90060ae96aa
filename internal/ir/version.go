package ir

// Version constants for the wire format and engine.
const (
	// WireVersion is the snapshot wire format version this engine validates against.
	WireVersion = "2"

	// EngineVersion is the envgraph engine version.
	EngineVersion = "0.1.0"
)
