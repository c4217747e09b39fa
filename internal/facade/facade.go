package facade

import (
	"encoding/json"
	"time"

	"github.com/opencode-ai/iterm-orchestrator/internal/agentreg"
	"github.com/opencode-ai/iterm-orchestrator/internal/clock"
	"github.com/opencode-ai/iterm-orchestrator/internal/config"
	"github.com/opencode-ai/iterm-orchestrator/internal/dedup"
	"github.com/opencode-ai/iterm-orchestrator/internal/dispatch"
	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/lockmgr"
	"github.com/opencode-ai/iterm-orchestrator/internal/logging"
	"github.com/opencode-ai/iterm-orchestrator/internal/monitor"
	"github.com/opencode-ai/iterm-orchestrator/internal/notify"
	"github.com/opencode-ai/iterm-orchestrator/internal/permission"
	"github.com/opencode-ai/iterm-orchestrator/internal/persist"
	"github.com/opencode-ai/iterm-orchestrator/internal/planexec"
	"github.com/opencode-ai/iterm-orchestrator/internal/sessionreg"
	"github.com/opencode-ai/iterm-orchestrator/internal/target"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// Kernel is the Orchestration Façade: the public operation surface and
// the composition root wiring every other component together.
type Kernel struct {
	cfg *config.Config
	clk clock.Clock
	log *persist.Log

	driver driver.TerminalDriver

	sessions *sessionreg.Registry
	agents   *agentreg.Registry
	locks    *lockmgr.Manager
	dedup    *dedup.Cache
	bus      *event.Bus
	resolver *target.Resolver
	dispatch *dispatch.Dispatcher
	managers *planexec.ManagerStore
	executor *planexec.Executor
	runner   planexec.StepRunner
	monitor  *monitor.Monitor
	notify   *notify.Buffer
	roles    *permission.Roles
	checker  *permission.Checker

	subs *subscriptionTable
}

// New wires every kernel component and replays persisted state, in the
// order: persistence log, registries, lock manager, dedup cache, event
// bus, resolver, dispatcher, plan executor, output monitor, notification
// buffer, permission roles.
func New(cfg *config.Config, drv driver.TerminalDriver) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Load()
	}

	log, err := persist.Open(cfg.LogDir)
	if err != nil {
		return nil, err
	}

	clk := clock.System{}

	k := &Kernel{
		cfg:    cfg,
		clk:    clk,
		log:    log,
		driver: drv,
		subs:   newSubscriptionTable(),
	}

	k.sessions = sessionreg.New(clk, log)
	k.agents = agentreg.New(clk, log, true)
	k.sessions.SetAgentResolver(k.agents)

	k.locks = lockmgr.New(clk)
	k.dedup = dedup.New(cfg.DedupMaxEntries, time.Duration(cfg.DedupTTLSeconds)*time.Second, clk)
	k.bus = event.New()
	k.resolver = target.New(k.sessions, k.agents)

	pollInterval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	k.dispatch = dispatch.New(k.resolver, k.sessions, drv, k.locks, k.dedup, k.bus, dispatch.DefaultParallelism, cfg.DefaultMaxLines)

	k.managers = planexec.NewManagerStore(clk, log)
	k.runner = &planexec.DispatcherStepRunner{Dispatcher: k.dispatch, Agents: k.agents, Bus: k.bus}
	k.executor = planexec.NewExecutor(k.managers, k.runner, k.bus, planexec.DefaultConcurrency)

	k.monitor = monitor.New(drv, k.bus, pollInterval, cfg.DefaultMaxLines)
	k.notify = notify.New(0)
	k.roles = permission.NewRoles()
	k.checker = permission.NewChecker(k.bus)

	degraded := func(err error) {
		logging.Error().Err(err).Msg("facade: persistence degraded")
	}
	k.sessions.OnDegraded(degraded)
	k.agents.OnDegraded(degraded)

	if err := k.restore(); err != nil {
		return nil, err
	}
	return k, nil
}

// restore replays every persisted kind into its owning registry.
func (k *Kernel) restore() error {
	var sessRecs []sessionreg.PersistedSession
	if err := k.log.Replay(persist.KindPersistentSessions, func(raw json.RawMessage) error {
		var rec sessionreg.PersistedSession
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil
		}
		sessRecs = append(sessRecs, rec)
		return nil
	}); err != nil {
		return err
	}
	k.sessions.Restore(sessRecs)

	var agentRecs []agentreg.AgentPersisted
	if err := k.log.Replay(persist.KindAgents, func(raw json.RawMessage) error {
		var rec agentreg.AgentPersisted
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil
		}
		agentRecs = append(agentRecs, rec)
		return nil
	}); err != nil {
		return err
	}
	var teamRecs []agentreg.TeamPersisted
	if err := k.log.Replay(persist.KindTeams, func(raw json.RawMessage) error {
		var rec agentreg.TeamPersisted
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil
		}
		teamRecs = append(teamRecs, rec)
		return nil
	}); err != nil {
		return err
	}
	k.agents.Restore(agentRecs, teamRecs)

	var mgrRecs []planexec.ManagerPersisted
	if err := k.log.Replay(persist.KindManagers, func(raw json.RawMessage) error {
		var rec planexec.ManagerPersisted
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil
		}
		mgrRecs = append(mgrRecs, rec)
		return nil
	}); err != nil {
		return err
	}
	k.managers.Restore(mgrRecs)

	if err := k.log.Replay(persist.KindNotifications, func(raw json.RawMessage) error {
		var n types.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil
		}
		k.notify.Add(n)
		return nil
	}); err != nil {
		return err
	}
	return nil
}

// Close shuts down the event bus and persistence log. Active output
// monitors are left running; callers that own the process lifecycle
// should stop sessions individually first if a clean drain matters.
func (k *Kernel) Close() error {
	k.bus.Close()
	return k.log.Close()
}

func colorInRange(v int) bool { return v >= 0 && v <= 255 }
