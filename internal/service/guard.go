package service

import "github.com/fuegovibe/backend/internal/model"

// Membership guards are pure checks against the caller's latest snapshot of
// an event, evaluated before any remote call is issued. The remote mutation
// carries matching preconditions, so a stale snapshot fails server-side
// rather than drifting the participant counter.

// CanJoin reports whether userID may register: not already a participant and
// the event is not at capacity.
func CanJoin(e *model.Event, userID string) bool {
	return !e.IsUserParticipating(userID) && !e.IsFull()
}

// CanLeave reports whether userID may deregister: currently a participant.
func CanLeave(e *model.Event, userID string) bool {
	return e.IsUserParticipating(userID)
}
