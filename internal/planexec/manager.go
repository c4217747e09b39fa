package planexec

import (
	"math/rand"
	"sync"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/kernelerr"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// ManagerStore owns Manager records: the worker pool, selection strategy,
// and the cross-call state (round-robin cursor, in-flight counts) a
// strategy needs. Managers are append-only persisted, like agents and
// teams.
type ManagerStore struct {
	mu       sync.Mutex
	clk      clock.Clock
	log      *persist.Log
	managers map[string]*types.Manager
}

// NewManagerStore creates an empty ManagerStore.
func NewManagerStore(clk clock.Clock, log *persist.Log) *ManagerStore {
	return &ManagerStore{clk: clk, log: log, managers: make(map[string]*types.Manager)}
}

// Register creates or replaces a manager's worker pool and strategy,
// resetting its round-robin cursor and in-flight counts.
func (s *ManagerStore) Register(name string, workers []string, workerRoles map[string]string, strategy types.Strategy) (*types.Manager, error) {
	if name == "" {
		return nil, &kernelerr.InvalidArgument{Field: "name", Reason: "must not be empty"}
	}
	if len(workers) == 0 {
		return nil, &kernelerr.InvalidArgument{Field: "workers", Reason: "must not be empty"}
	}

	s.mu.Lock()
	m := &types.Manager{
		Name:        name,
		Workers:     append([]string(nil), workers...),
		WorkerRoles: workerRoles,
		Strategy:    strategy,
		InFlight:    make(map[string]int),
	}
	s.managers[name] = m
	out := m.Clone()
	s.mu.Unlock()

	if s.log != nil {
		_ = s.log.Append(persist.KindManagers, managerRecord(out, s.clk.Now()))
	}
	return out, nil
}

// get returns the live manager (not a clone) so selection can mutate
// cursor/in-flight state in place, or (nil, false) if unknown.
func (s *ManagerStore) get(name string) (*types.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[name]
	return m, ok
}

// Snapshot returns a deep copy of a manager's current state.
func (s *ManagerStore) Snapshot(name string) (*types.Manager, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[name]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// SelectWorker picks a worker for step from manager's pool according to
// its strategy, marking the chosen worker busy (the caller must call
// ReleaseWorker when the step finishes, success or failure).
func (s *ManagerStore) SelectWorker(managerName string, step types.PlanStep) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.managers[managerName]
	if !ok {
		return "", &kernelerr.NotFound{What: "manager", Key: managerName}
	}
	if len(m.Workers) == 0 {
		return "", &kernelerr.InvalidArgument{Field: "workers", Reason: "manager has no workers"}
	}

	var worker string
	switch m.Strategy {
	case types.StrategyRoleBased:
		worker = selectRoleBased(m, step.Role)
	case types.StrategyLeastBusy:
		worker = selectLeastBusy(m)
	case types.StrategyPriority:
		worker = m.Workers[0]
	case types.StrategyRandom:
		worker = m.Workers[rand.Intn(len(m.Workers))]
	default: // StrategyRoundRobin and unset
		worker = selectRoundRobin(m)
	}

	if m.InFlight == nil {
		m.InFlight = make(map[string]int)
	}
	m.InFlight[worker]++
	return worker, nil
}

// AddWorker appends worker to managerName's pool if not already present.
func (s *ManagerStore) AddWorker(managerName, worker, role string) error {
	s.mu.Lock()
	m, ok := s.managers[managerName]
	if !ok {
		s.mu.Unlock()
		return &kernelerr.NotFound{What: "manager", Key: managerName}
	}
	found := false
	for _, w := range m.Workers {
		if w == worker {
			found = true
			break
		}
	}
	if !found {
		m.Workers = append(m.Workers, worker)
	}
	if role != "" {
		if m.WorkerRoles == nil {
			m.WorkerRoles = make(map[string]string)
		}
		m.WorkerRoles[worker] = role
	}
	out := m.Clone()
	s.mu.Unlock()

	if s.log != nil {
		_ = s.log.Append(persist.KindManagers, managerRecord(out, s.clk.Now()))
	}
	return nil
}

// RemoveWorker drops worker from managerName's pool.
func (s *ManagerStore) RemoveWorker(managerName, worker string) error {
	s.mu.Lock()
	m, ok := s.managers[managerName]
	if !ok {
		s.mu.Unlock()
		return &kernelerr.NotFound{What: "manager", Key: managerName}
	}
	out := m.Workers[:0:0]
	for _, w := range m.Workers {
		if w != worker {
			out = append(out, w)
		}
	}
	m.Workers = out
	delete(m.WorkerRoles, worker)
	delete(m.InFlight, worker)
	snapshot := m.Clone()
	s.mu.Unlock()

	if s.log != nil {
		_ = s.log.Append(persist.KindManagers, managerRecord(snapshot, s.clk.Now()))
	}
	return nil
}

// ReleaseWorker decrements a worker's in-flight count after its step
// finishes.
func (s *ManagerStore) ReleaseWorker(managerName, worker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[managerName]
	if !ok {
		return
	}
	if m.InFlight[worker] > 0 {
		m.InFlight[worker]--
	}
}

func selectRoundRobin(m *types.Manager) string {
	w := m.Workers[m.RoundRobinCursor%len(m.Workers)]
	m.RoundRobinCursor++
	return w
}

func selectRoleBased(m *types.Manager, role string) string {
	if role == "" {
		return selectRoundRobin(m)
	}
	var matching []string
	for _, w := range m.Workers {
		if m.WorkerRoles[w] == role {
			matching = append(matching, w)
		}
	}
	if len(matching) == 0 {
		return selectRoundRobin(m)
	}
	idx := m.RoundRobinCursor % len(matching)
	m.RoundRobinCursor++
	return matching[idx]
}

func selectLeastBusy(m *types.Manager) string {
	best := m.Workers[0]
	bestLoad := m.InFlight[best]
	for _, w := range m.Workers[1:] {
		if m.InFlight[w] < bestLoad {
			best = w
			bestLoad = m.InFlight[w]
		}
	}
	return best
}

type ManagerPersisted struct {
	Kind             string            `json:"kind"`
	Version          int               `json:"version"`
	Name             string            `json:"name"`
	Workers          []string          `json:"workers"`
	WorkerRoles      map[string]string `json:"workerRoles,omitempty"`
	Strategy         types.Strategy    `json:"strategy"`
	RoundRobinCursor int               `json:"roundRobinCursor"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func managerRecord(m *types.Manager, now time.Time) ManagerPersisted {
	return ManagerPersisted{
		Kind:             "manager",
		Version:          1,
		Name:             m.Name,
		Workers:          m.Workers,
		WorkerRoles:      m.WorkerRoles,
		Strategy:         m.Strategy,
		RoundRobinCursor: m.RoundRobinCursor,
		UpdatedAt:        now,
	}
}

// Restore rehydrates manager records from the persistence log at startup.
func (s *ManagerStore) Restore(records []ManagerPersisted) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.managers[rec.Name] = &types.Manager{
			Name:             rec.Name,
			Workers:          rec.Workers,
			WorkerRoles:      rec.WorkerRoles,
			Strategy:         rec.Strategy,
			RoundRobinCursor: rec.RoundRobinCursor,
			InFlight:         make(map[string]int),
		}
	}
}
