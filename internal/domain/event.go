package domain

import "time"

// EventType names a lifecycle or security event.
type EventType string

const (
	EventUserRegistered     EventType = "user.registered"
	EventTokenReuseDetected EventType = "token.reuse_detected"
	EventTokenFamilyRevoked EventType = "token.family_revoked"
	EventLiteratureCreated  EventType = "literature.created"
	EventLiteratureDeleted  EventType = "literature.deleted"
	EventLiteratureRestored EventType = "literature.restored"
	EventMembershipAdded    EventType = "membership.added"
	EventMembershipRemoved  EventType = "membership.removed"
	EventStorageCleanupRun  EventType = "storage.cleanup"
)

// Event is published after a state change commits.
type Event struct {
	Type       EventType         `json:"type"`
	ActorID    int64             `json:"actor_id,omitempty"`
	GroupID    int64             `json:"group_id,omitempty"`
	SubjectID  int64             `json:"subject_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
