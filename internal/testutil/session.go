package testutil

// DefaultSession is the session id used when a scenario does not name one.
const DefaultSession = "test-session"

// FixedSessionGenerator returns the same session id every time, so traces of
// repeated runs compare byte for byte.
type FixedSessionGenerator struct {
	session string
}

// NewFixedSessionGenerator creates a generator for session. An empty session
// falls back to DefaultSession.
func NewFixedSessionGenerator(session string) *FixedSessionGenerator {
	if session == "" {
		session = DefaultSession
	}
	return &FixedSessionGenerator{session: session}
}

// Generate implements trace.SessionGenerator.
func (g *FixedSessionGenerator) Generate() string {
	return g.session
}
