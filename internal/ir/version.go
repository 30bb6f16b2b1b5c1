package ir

// Version constants for the IR schema and engine.
const (
	// IRVersion is the compiled rule pack schema version.
	IRVersion = "1"

	// EngineVersion is the patchwork engine version.
	EngineVersion = "0.1.0"
)
