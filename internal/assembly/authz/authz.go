// Package authz holds the capability predicates gating every engine
// mutation. All predicates are pure functions of their arguments — no store
// lookups, no hidden state — so they can be unit tested without fixtures.
package authz

import (
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// CanCreateEvent: clocker and above may create events.
func CanCreateEvent(role types.Role) bool {
	return role.AtLeast(types.RoleClocker)
}

// CanModifyEvent: associate-pastor and above, the event's creator, or its
// assigned operator.
func CanModifyEvent(actor types.Actor, ev *types.Event) bool {
	if actor.Role.AtLeast(types.RoleAssociatePastor) {
		return true
	}
	return actor.ID == ev.CreatedBy || (ev.AssignedOperator != "" && actor.ID == ev.AssignedOperator)
}

// CanMarkAttendance decides whether actor may record attendance for
// targetUserID on ev. Self-marking is always permitted. A clocker may mark
// only on events they operate; a department leader may mark participants of
// events scoped to one of their own units.
func CanMarkAttendance(actor types.Actor, ev *types.Event, targetUserID string) bool {
	if actor.ID == targetUserID {
		return true
	}
	if actor.Role.AtLeast(types.RolePastor) {
		return true
	}
	if actor.Role == types.RoleClocker {
		return ev.AssignedOperator != "" && actor.ID == ev.AssignedOperator
	}
	if actor.Role == types.RoleDepartmentLeader {
		return actor.MemberOf(ev.Scope) &&
			(ev.IsExpected(targetUserID) || ev.IsActual(targetUserID))
	}
	return false
}

// CanDeleteEvent mirrors CanModifyEvent but is additionally blocked once any
// attendance has been recorded; the caller supplies the record count.
func CanDeleteEvent(actor types.Actor, ev *types.Event, recordCount int) bool {
	return recordCount == 0 && CanModifyEvent(actor, ev)
}

// Elevated reports whether the actor may bypass scope-membership and
// future-start requirements at creation time.
func Elevated(role types.Role) bool {
	return role.AtLeast(types.RoleAssociatePastor)
}
