// Package sessionreg's Registry is the source of truth for session
// identity: name uniqueness among live sessions, stable persistent_id
// across reconnects, and the tag/max-lines metadata other components
// read. It knows nothing about agents directly; an AgentSessionResolver
// is wired in by the façade so agent-aware lookups stay possible without
// sessionreg importing agentreg.
package sessionreg
