package lifecycle

import (
	"fmt"
	"strings"
)

// Status enumerates the states a ride moves through.
type Status string

const (
	StatusRequested Status = "requested"
	StatusOffered   Status = "offered"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a ride in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus validates a server-supplied status string.
func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusRequested:
		return StatusRequested, nil
	case StatusOffered:
		return StatusOffered, nil
	case StatusAccepted:
		return StatusAccepted, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown ride status %q", value)
}

// Role identifies which side of a ride an actor is on.
type Role string

const (
	RoleRequester Role = "requester"
	RoleFulfiller Role = "fulfiller"
)

// UnknownRoleError reports a role string that could not be resolved.
type UnknownRoleError struct {
	Value string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Value)
}

// ParseRole resolves a role string once, at session start. Upstream services
// have used several spellings for the same two roles, so the common aliases
// are folded here rather than at every call site. Anything unrecognized is an
// error, never a silent default.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "requester", "passenger", "passager", "rider":
		return RoleRequester, nil
	case "fulfiller", "driver", "chauffeur":
		return RoleFulfiller, nil
	}
	return "", &UnknownRoleError{Value: value}
}

// Action enumerates the commands an actor may issue against a ride.
type Action string

const (
	ActionRequest  Action = "request"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// TransitionError reports a transition that is not permitted, either because
// the action is undefined for the current status or because the actor's role
// may not perform it.
type TransitionError struct {
	From   Status
	Action Action
	Role   Role
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s from %q denied for %s: %s", e.Action, e.From, e.Role, e.Reason)
}

// transition is a single row of the lifecycle table.
type transition struct {
	from Status
	role Role
	to   Status
}

// transitions defines every legal (action, current status, role) combination.
// The server remains authoritative; this table mirrors its policy so obviously
// doomed commands fail locally without a round trip. Accept is permitted from
// both requested and offered because the gateway assigns offers opportunistically
// and a fulfiller may grab an unoffered ride. Reject returns an offered ride to
// the open pool rather than cancelling it.
var transitions = map[Action][]transition{
	ActionRequest:  {{from: "", role: RoleRequester, to: StatusRequested}},
	ActionAccept:   {{from: StatusRequested, role: RoleFulfiller, to: StatusAccepted}, {from: StatusOffered, role: RoleFulfiller, to: StatusAccepted}},
	ActionReject:   {{from: StatusOffered, role: RoleFulfiller, to: StatusRequested}},
	ActionComplete: {{from: StatusAccepted, role: RoleFulfiller, to: StatusCompleted}},
	ActionCancel: {
		{from: StatusRequested, role: RoleRequester, to: StatusCancelled},
		{from: StatusOffered, role: RoleRequester, to: StatusCancelled},
		{from: StatusAccepted, role: RoleRequester, to: StatusCancelled},
	},
}

// ValidateTransition returns the status a ride moves to when actor performs
// action on a ride currently in current. A ride that does not exist yet has
// current == "". The result is a pure value; no transition is applied anywhere.
func ValidateTransition(current Status, action Action, actor Role) (Status, error) {
	rows, ok := transitions[action]
	if !ok {
		return "", &TransitionError{From: current, Action: action, Role: actor, Reason: "unknown action"}
	}
	actionDefined := false
	for _, row := range rows {
		if row.from != current {
			continue
		}
		actionDefined = true
		if row.role == actor {
			return row.to, nil
		}
	}
	if actionDefined {
		return "", &TransitionError{From: current, Action: action, Role: actor, Reason: "role not permitted"}
	}
	return "", &TransitionError{From: current, Action: action, Role: actor, Reason: "action not defined for current status"}
}

// ApplyServerStatus reconciles a server-observed status with the local one.
// The server always wins, with one exception: once the local copy has reached
// a terminal status, a non-terminal server payload is stale (polling can race
// command confirmations) and must not regress the ride. The boolean reports
// whether the server value should be applied; when false the caller keeps the
// local status and typically logs the stale payload.
func ApplyServerStatus(local, server Status) (Status, bool) {
	if local.Terminal() && !server.Terminal() {
		return local, false
	}
	return server, true
}
