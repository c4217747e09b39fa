package event

// Well-known topic names published by kernel components. Topics not listed
// here are still valid; these are the ones other components subscribe to
// by name rather than by pattern.
const (
	TopicSessionCreated  = "session.created"
	TopicSessionDead     = "session.dead"
	TopicSessionInput    = "session.input"
	TopicAgentRegistered = "agent.registered"
	TopicAgentRemoved    = "agent.removed"
	TopicTeamCreated     = "team.created"
	TopicTeamRemoved     = "team.removed"
	TopicLockAcquired    = "lock.acquired"
	TopicLockReleased    = "lock.released"
	TopicMessageSent     = "message.sent"
	TopicMessageDropped  = "message.dropped"
	TopicPlanStarted     = "plan.started"
	TopicPlanStepStarted = "plan.step.started"
	TopicPlanStepDone    = "plan.step.done"
	TopicPlanCompleted   = "plan.completed"
	TopicBusDropped      = "bus.dropped"
	TopicPatternMatched  = "pattern.matched"

	TopicPermissionRequired = "permission.required"
	TopicPermissionResolved = "permission.resolved"

	TopicNotificationAdded = "notification.added"
)

// SessionOutputTopic returns the per-session output topic name, matching
// what the Output Monitor publishes to and what OnOutputPattern subscribes
// to under the hood.
func SessionOutputTopic(sessionID string) string {
	return "session.output." + sessionID
}
