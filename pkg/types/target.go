package types

// Target is a tagged-union descriptor naming one or more sessions.
// Exactly one selector field should be set per spec; Broadcast is a
// standalone boolean flag rather than a value-bearing field.
type Target struct {
	SessionID    string `json:"sessionID,omitempty"`
	Name         string `json:"name,omitempty"`
	Agent        string `json:"agent,omitempty"`
	Team         string `json:"team,omitempty"`
	Tag          string `json:"tag,omitempty"`
	PersistentID string `json:"persistentID,omitempty"`
	Broadcast    bool   `json:"broadcast,omitempty"`
}

// Descriptor renders a human-readable label for error messages.
func (t Target) Descriptor() string {
	switch {
	case t.SessionID != "":
		return "session_id:" + t.SessionID
	case t.Name != "":
		return "name:" + t.Name
	case t.Agent != "":
		return "agent:" + t.Agent
	case t.Team != "":
		return "team:" + t.Team
	case t.Tag != "":
		return "tag:" + t.Tag
	case t.PersistentID != "":
		return "persistent_id:" + t.PersistentID
	case t.Broadcast:
		return "broadcast"
	default:
		return "empty"
	}
}
