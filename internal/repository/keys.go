package repository

// Cache key schema, authoritative per spec for cross-implementation
// interop with the existing deployment.
const (
	activeSessionsKey = "active_sessions"
)

func sessionKey(id string) string     { return "session:" + id }
func votesKey(id string) string       { return "votes:" + id }
func votersKey(id string) string      { return "voters:" + id }
func voteRecordsKey(id string) string { return "voterecords:" + id }
func chatKey(id string) string        { return "chat:" + id }
func dirtyKey(id string) string       { return "dirty:" + id }
