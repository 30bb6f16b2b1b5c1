package testutil

// FixedSessionIDs returns the same session id every time, so a journal
// written by a test has a known key.
//
// Stateless and safe for concurrent use.
type FixedSessionIDs struct {
	id string
}

// NewFixedSessionIDs creates the generator. An empty id means
// "test-session".
func NewFixedSessionIDs(id string) *FixedSessionIDs {
	if id == "" {
		id = "test-session"
	}
	return &FixedSessionIDs{id: id}
}

// Generate returns the fixed id. Implements engine.SessionIDGenerator.
func (g *FixedSessionIDs) Generate() string {
	return g.id
}
