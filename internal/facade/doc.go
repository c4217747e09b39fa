// Package facade implements the Orchestration Façade: the single public
// operation surface over every other kernel component, and the
// composition root that wires them together. It is the only component
// allowed to mutate across components inside one operation, under a
// fixed ordering: resolver, then lock check, then dispatcher/executor,
// then persistence, then event publish. A caller identity, when the
// transport conveys one, is threaded through so the Lock Manager can
// reject ill-owned writes.
package facade
