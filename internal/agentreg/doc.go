// Package agentreg implements the Agent/Team Registry: it binds stable
// agent names to sessions, groups agents into teams, and persists both
// through the append-only Persistence Log.
//
// An agent name is a target a caller can address directly (target.Agent)
// or via the teams it belongs to (target.Team). Team membership order on
// an agent is preserved from assignment and used by the dispatcher to
// break cascade specificity ties.
//
// Registry satisfies target.AgentLookup and sessionreg.AgentSessionResolver
// structurally, so neither of those packages imports agentreg, avoiding a
// dependency cycle with sessionreg.
package agentreg
