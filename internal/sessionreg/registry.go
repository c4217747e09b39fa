// Package sessionreg implements the Session Registry: the kernel's record
// of every terminal pane it knows about, live or dead-but-reconnectable.
package sessionreg

import (
	"strings"
	"sync"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// AgentSessionResolver resolves an agent name to its currently bound
// session id. The Session Registry doesn't own agent bindings itself; the
// façade wires the Agent/Team Registry in here so lookup(by=agent) and
// list(agents_only/agent filter) can be served from one place.
type AgentSessionResolver interface {
	ResolveAgentSession(name string) (sessionID string, ok bool)
	BoundAgent(sessionID string) (name string, ok bool)
}

// Registry is the Session Registry. All mutations are serialized by a
// single mutex; lookups take the read half.
type Registry struct {
	mu sync.RWMutex

	clk clock.Clock
	log *persist.Log

	byID           map[string]*types.Session
	byName         map[string]string // live sessions only
	byPersistentID map[string]string

	resolver AgentSessionResolver

	onDegraded func(error)
}

// New creates an empty Session Registry.
func New(clk clock.Clock, log *persist.Log) *Registry {
	return &Registry{
		clk:            clk,
		log:            log,
		byID:           make(map[string]*types.Session),
		byName:         make(map[string]string),
		byPersistentID: make(map[string]string),
		onDegraded:     func(error) {},
	}
}

// SetAgentResolver wires the Agent/Team Registry for agent-aware lookups.
func (r *Registry) SetAgentResolver(resolver AgentSessionResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = resolver
}

// OnDegraded registers a callback invoked (outside the registry lock)
// whenever a persistence write fails, so the façade can publish
// persistence.degraded.
func (r *Registry) OnDegraded(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDegraded = fn
}

// Register binds sessionHandle to name. If persistentID is empty, a new
// one is minted. If persistentID matches an existing dead record, that
// record's live handle is rebound rather than creating a new session.
func (r *Registry) Register(sessionHandle, name, persistentID string) (*types.Session, error) {
	r.mu.Lock()

	if name != "" {
		if id, ok := r.byName[name]; ok {
			if existing, ok2 := r.byID[id]; ok2 && existing.Alive {
				r.mu.Unlock()
				return nil, &kernelerr.NameConflict{Name: name}
			}
		}
	}

	now := r.clk.Now()

	if persistentID != "" {
		if id, ok := r.byPersistentID[persistentID]; ok {
			if existing, ok2 := r.byID[id]; ok2 {
				delete(r.byID, id)
				if existing.Name != "" {
					delete(r.byName, existing.Name)
				}
				existing.SessionID = sessionHandle
				existing.Alive = true
				if name != "" {
					existing.Name = name
				}
				r.byID[sessionHandle] = existing
				if existing.Name != "" {
					r.byName[existing.Name] = sessionHandle
				}
				r.byPersistentID[persistentID] = sessionHandle
				out := existing.Clone()
				r.mu.Unlock()
				r.persist()
				return out, nil
			}
		}
	}

	pid := persistentID
	if pid == "" {
		pid = clock.NewPersistentID()
	}
	sess := &types.Session{
		SessionID:    sessionHandle,
		PersistentID: pid,
		Name:         name,
		CreatedAt:    now,
		Alive:        true,
	}
	r.byID[sessionHandle] = sess
	if name != "" {
		r.byName[name] = sessionHandle
	}
	r.byPersistentID[pid] = sessionHandle
	out := sess.Clone()
	r.mu.Unlock()
	r.persist()
	return out, nil
}

// LookupKey selects exactly one of its fields to look a session up by.
type LookupKey struct {
	SessionID    string
	Name         string
	PersistentID string
	Agent        string
	Tag          string
}

// Lookup returns the single session matching key, if any.
func (r *Registry) Lookup(key LookupKey) (*types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case key.SessionID != "":
		s, ok := r.byID[key.SessionID]
		return cloneOrNil(s, ok)
	case key.Name != "":
		id, ok := r.byName[key.Name]
		if !ok {
			return nil, false
		}
		s, ok := r.byID[id]
		return cloneOrNil(s, ok)
	case key.PersistentID != "":
		id, ok := r.byPersistentID[key.PersistentID]
		if !ok {
			return nil, false
		}
		s, ok := r.byID[id]
		return cloneOrNil(s, ok)
	case key.Agent != "":
		if r.resolver == nil {
			return nil, false
		}
		id, ok := r.resolver.ResolveAgentSession(key.Agent)
		if !ok {
			return nil, false
		}
		s, ok := r.byID[id]
		return cloneOrNil(s, ok)
	case key.Tag != "":
		for _, s := range r.byID {
			if s.HasTag(key.Tag) {
				return s.Clone(), true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

func cloneOrNil(s *types.Session, ok bool) (*types.Session, bool) {
	if !ok || s == nil {
		return nil, false
	}
	return s.Clone(), true
}

// List returns every session matching filter, in no particular order.
func (r *Registry) List(filter types.SessionFilter) []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*types.Session
	for _, s := range r.byID {
		if filter.NamePrefix != "" && !strings.HasPrefix(s.Name, filter.NamePrefix) {
			continue
		}
		if filter.Tag != "" && !s.HasTag(filter.Tag) {
			continue
		}
		hasAgent := false
		if r.resolver != nil {
			_, hasAgent = r.resolver.BoundAgent(s.SessionID)
		}
		if filter.AgentsOnly && !hasAgent {
			continue
		}
		if filter.Agent != "" {
			if r.resolver == nil {
				continue
			}
			boundID, ok := r.resolver.ResolveAgentSession(filter.Agent)
			if !ok || boundID != s.SessionID {
				continue
			}
		}
		out = append(out, s.Clone())
	}
	return out
}

// SetTags replaces a session's tag set.
func (r *Registry) SetTags(sessionID string, tags []string) error {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "session", Key: sessionID}
	}
	s.Tags = append([]string(nil), tags...)
	r.mu.Unlock()
	r.persist()
	return nil
}

// SetMaxLines sets a session's screen-read cap.
func (r *Registry) SetMaxLines(sessionID string, n int) error {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "session", Key: sessionID}
	}
	s.MaxLines = n
	r.mu.Unlock()
	r.persist()
	return nil
}

// SetRole sets a session's assigned default role, consulted by
// check_tool_permission when no agent is bound to the session.
func (r *Registry) SetRole(sessionID, role string) error {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "session", Key: sessionID}
	}
	s.Role = role
	r.mu.Unlock()
	r.persist()
	return nil
}

// MarkDead records that the driver reported termination. The record is
// kept (not deleted) so persistent_id lookups keep working, and its name
// is freed for reuse by a live session.
func (r *Registry) MarkDead(sessionID string) error {
	r.mu.Lock()
	s, ok := r.byID[sessionID]
	if !ok {
		r.mu.Unlock()
		return &kernelerr.NotFound{What: "session", Key: sessionID}
	}
	s.Alive = false
	if s.Name != "" {
		delete(r.byName, s.Name)
	}
	r.mu.Unlock()
	r.persist()
	return nil
}

// persist rewrites the persistent_sessions file from the full in-memory
// state. The file (one JSON record per line) is rewritten atomically via
// Log.Compact rather than appended to, so every mutation triggers a full
// compaction write.
func (r *Registry) persist() {
	if r.log == nil {
		return
	}
	r.mu.RLock()
	records := make([]any, 0, len(r.byID))
	for _, s := range r.byID {
		records = append(records, PersistedSession{
			Kind:         "session",
			Version:      1,
			SessionID:    s.SessionID,
			PersistentID: s.PersistentID,
			Name:         s.Name,
			Tags:         s.Tags,
			MaxLines:     s.MaxLines,
			Role:         s.Role,
			CreatedAt:    s.CreatedAt,
			Alive:        s.Alive,
			Metadata:     s.Metadata,
			UpdatedAt:    r.clk.Now(),
		})
	}
	onDegraded := r.onDegraded
	r.mu.RUnlock()

	if err := r.log.Compact(persist.KindPersistentSessions, records); err != nil {
		onDegraded(err)
	}
}

type PersistedSession struct {
	Kind         string            `json:"kind"`
	Version      int               `json:"version"`
	SessionID    string            `json:"sessionID"`
	PersistentID string            `json:"persistentID"`
	Name         string            `json:"name"`
	Tags         []string          `json:"tags,omitempty"`
	MaxLines     int               `json:"maxLines,omitempty"`
	Role         string            `json:"role,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	Alive        bool              `json:"alive"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Restore replaces in-memory state from previously persisted records,
// called once at startup after persist.Log.Replay.
func (r *Registry) Restore(records []PersistedSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		s := &types.Session{
			SessionID:    rec.SessionID,
			PersistentID: rec.PersistentID,
			Name:         rec.Name,
			Tags:         rec.Tags,
			MaxLines:     rec.MaxLines,
			Role:         rec.Role,
			CreatedAt:    rec.CreatedAt,
			Alive:        rec.Alive,
			Metadata:     rec.Metadata,
		}
		r.byID[s.SessionID] = s
		if s.Alive && s.Name != "" {
			r.byName[s.Name] = s.SessionID
		}
		if s.PersistentID != "" {
			r.byPersistentID[s.PersistentID] = s.SessionID
		}
	}
}
