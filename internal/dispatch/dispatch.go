package dispatch

import (
	"context"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/opencode-ai/iterm-orchestrator/internal/dedup"
	"github.com/opencode-ai/iterm-orchestrator/internal/driver"
	"github.com/opencode-ai/iterm-orchestrator/internal/event"
	"github.com/opencode-ai/iterm-orchestrator/internal/lockmgr"
	"github.com/opencode-ai/iterm-orchestrator/internal/sessionreg"
	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// DefaultParallelism is the semaphore weight New uses when given
// parallelism <= 0. The semaphore belongs to the Dispatcher, so the bound
// on concurrent driver writes/reads is shared by all calls on it.
const DefaultParallelism = 32

// Resolver is the subset of the Target Resolver the dispatcher needs.
type Resolver interface {
	Resolve(t types.Target) ([]string, error)
}

// SessionLookup is the subset of the Session Registry the dispatcher needs
// to find a session's configured max_lines.
type SessionLookup interface {
	Lookup(key sessionreg.LookupKey) (*types.Session, bool)
}

// Dispatcher is the Message Dispatcher.
type Dispatcher struct {
	resolver        Resolver
	sessions        SessionLookup
	driver          driver.TerminalDriver
	locks           *lockmgr.Manager
	dedupCache      *dedup.Cache
	bus             *event.Bus
	sem             *semaphore.Weighted
	defaultMaxLines int
}

// New creates a Dispatcher. parallelism <= 0 uses DefaultParallelism.
// defaultMaxLines is the global fallback read size when neither a caller
// nor a session specifies one.
func New(resolver Resolver, sessions SessionLookup, drv driver.TerminalDriver, locks *lockmgr.Manager, dedupCache *dedup.Cache, bus *event.Bus, parallelism, defaultMaxLines int) *Dispatcher {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Dispatcher{
		resolver:        resolver,
		sessions:        sessions,
		driver:          drv,
		locks:           locks,
		dedupCache:      dedupCache,
		bus:             bus,
		sem:             semaphore.NewWeighted(int64(parallelism)),
		defaultMaxLines: defaultMaxLines,
	}
}

// WriteInput is one message to deliver to one or more targets.
type WriteInput struct {
	Content      string
	Targets      []types.Target
	ExecuteEnter bool
	UseEncoding  bool
}

// WriteEntry is the outcome of delivering one message to one resolved
// session.
type WriteEntry struct {
	Target     types.Target
	SessionID  string
	Suppressed bool
	Cancelled  bool
	Err        error
}

// WriteResult is the ordered outcome of a write call.
type WriteResult struct {
	Entries []WriteEntry
}

type writeJob struct {
	msgIdx    int
	content   string
	target    types.Target
	sessionID string
	execEnter bool
	useEnc    bool
	resolveErr error
}

// Write fans content out to every (message, resolved session) pair.
// caller is the requesting agent's identity, consulted by the Lock
// Manager; pass "" when the transport conveys no identity.
func (d *Dispatcher) Write(ctx context.Context, messages []WriteInput, parallel, skipDuplicates bool, caller string) (WriteResult, error) {
	jobs := d.planWrites(messages)

	results := make([]WriteEntry, len(jobs))
	run := func(i int) {
		results[i] = d.runWriteJob(ctx, jobs[i], skipDuplicates, caller)
	}

	if !parallel {
		for i := range jobs {
			run(i)
		}
		return WriteResult{Entries: results}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range jobs {
		i := i
		if err := d.sem.Acquire(gctx, 1); err != nil {
			results[i] = WriteEntry{Target: jobs[i].target, SessionID: jobs[i].sessionID, Cancelled: true, Err: err}
			continue
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return WriteResult{Entries: results}, nil
}

// planWrites resolves every (message, target) pair into one job per
// resolved session, preserving input order.
func (d *Dispatcher) planWrites(messages []WriteInput) []writeJob {
	var jobs []writeJob
	for mi, msg := range messages {
		for _, t := range msg.Targets {
			sessionIDs, err := d.resolver.Resolve(t)
			if err != nil {
				jobs = append(jobs, writeJob{msgIdx: mi, content: msg.Content, target: t, execEnter: msg.ExecuteEnter, useEnc: msg.UseEncoding, resolveErr: err})
				continue
			}
			for _, sessionID := range sessionIDs {
				jobs = append(jobs, writeJob{msgIdx: mi, content: msg.Content, target: t, sessionID: sessionID, execEnter: msg.ExecuteEnter, useEnc: msg.UseEncoding})
			}
		}
	}
	return jobs
}

func (d *Dispatcher) runWriteJob(ctx context.Context, job writeJob, skipDuplicates bool, caller string) WriteEntry {
	entry := WriteEntry{Target: job.target, SessionID: job.sessionID}
	if job.resolveErr != nil {
		entry.Err = job.resolveErr
		return entry
	}

	if skipDuplicates {
		key := dedup.Key(job.sessionID, job.content)
		if d.dedupCache.ShouldSuppress(key) {
			entry.Suppressed = true
			return entry
		}
	}

	if caller != "" {
		if err := d.locks.CheckWrite(job.sessionID, caller); err != nil {
			entry.Err = err
			return entry
		}
	}

	if err := ctx.Err(); err != nil {
		entry.Cancelled = true
		return entry
	}

	if err := d.driver.Write(ctx, job.sessionID, job.content, job.execEnter, job.useEnc); err != nil {
		entry.Err = err
		return entry
	}
	if job.execEnter {
		time.Sleep(EnterDelay(len(job.content)))
	}

	if ctx.Err() != nil {
		entry.Cancelled = true
		return entry
	}

	if d.bus != nil {
		d.bus.Publish(event.TopicSessionInput, SessionInput{SessionID: job.sessionID, Content: job.content}, event.Normal)
	}
	return entry
}

// SessionInput is the payload published on session.input after a
// successful write.
type SessionInput struct {
	SessionID string
	Content   string
}

// ReadEntry is the outcome of reading one resolved session.
type ReadEntry struct {
	Target     types.Target
	SessionID  string
	Lines      []string
	Overflowed bool
	Err        error
}

// ReadResult is the ordered outcome of a read call.
type ReadResult struct {
	Entries []ReadEntry
}

// Read fans a screen read out across every resolved session. Reads are
// never blocked by locks.
func (d *Dispatcher) Read(ctx context.Context, targets []types.Target, parallel bool, filterPattern *regexp.Regexp, maxLines int) (ReadResult, error) {
	type readJob struct {
		target     types.Target
		sessionID  string
		resolveErr error
	}

	var jobs []readJob
	for _, t := range targets {
		sessionIDs, err := d.resolver.Resolve(t)
		if err != nil {
			jobs = append(jobs, readJob{target: t, resolveErr: err})
			continue
		}
		for _, sessionID := range sessionIDs {
			jobs = append(jobs, readJob{target: t, sessionID: sessionID})
		}
	}

	results := make([]ReadEntry, len(jobs))
	run := func(i int) {
		j := jobs[i]
		entry := ReadEntry{Target: j.target, SessionID: j.sessionID}
		if j.resolveErr != nil {
			entry.Err = j.resolveErr
			results[i] = entry
			return
		}

		limit := d.effectiveMaxLines(j.sessionID, maxLines)
		out, err := d.driver.ReadScreen(ctx, j.sessionID, limit)
		if err != nil {
			entry.Err = err
			results[i] = entry
			return
		}
		entry.Overflowed = out.Overflowed
		entry.Lines = filterLines(out.Lines, filterPattern)
		results[i] = entry
	}

	if !parallel {
		for i := range jobs {
			run(i)
		}
		return ReadResult{Entries: results}, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range jobs {
		i := i
		if err := d.sem.Acquire(gctx, 1); err != nil {
			results[i] = ReadEntry{Target: jobs[i].target, SessionID: jobs[i].sessionID, Err: err}
			continue
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return ReadResult{Entries: results}, nil
}

func (d *Dispatcher) effectiveMaxLines(sessionID string, requested int) int {
	if requested > 0 {
		return requested
	}
	if d.sessions != nil {
		if s, ok := d.sessions.Lookup(sessionreg.LookupKey{SessionID: sessionID}); ok && s.MaxLines > 0 {
			return s.MaxLines
		}
	}
	return d.defaultMaxLines
}

func filterLines(lines []string, pattern *regexp.Regexp) []string {
	if pattern == nil {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if pattern.MatchString(l) {
			out = append(out, l)
		}
	}
	return out
}
