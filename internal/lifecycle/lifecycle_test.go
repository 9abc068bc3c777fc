package lifecycle

import (
	"errors"
	"testing"
)

func TestValidateTransition_Table(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		action  Action
		actor   Role
		want    Status
		wantErr bool
	}{
		{"request new ride", "", ActionRequest, RoleRequester, StatusRequested, false},
		{"fulfiller cannot request", "", ActionRequest, RoleFulfiller, "", true},
		{"accept offered", StatusOffered, ActionAccept, RoleFulfiller, StatusAccepted, false},
		{"accept requested", StatusRequested, ActionAccept, RoleFulfiller, StatusAccepted, false},
		{"requester cannot accept", StatusOffered, ActionAccept, RoleRequester, "", true},
		{"accept accepted ride", StatusAccepted, ActionAccept, RoleFulfiller, "", true},
		{"reject offered", StatusOffered, ActionReject, RoleFulfiller, StatusRequested, false},
		{"reject requested", StatusRequested, ActionReject, RoleFulfiller, "", true},
		{"complete accepted", StatusAccepted, ActionComplete, RoleFulfiller, StatusCompleted, false},
		{"complete requested", StatusRequested, ActionComplete, RoleFulfiller, "", true},
		{"requester cannot complete", StatusAccepted, ActionComplete, RoleRequester, "", true},
		{"cancel requested", StatusRequested, ActionCancel, RoleRequester, StatusCancelled, false},
		{"cancel offered", StatusOffered, ActionCancel, RoleRequester, StatusCancelled, false},
		{"cancel accepted", StatusAccepted, ActionCancel, RoleRequester, StatusCancelled, false},
		{"fulfiller cannot cancel", StatusAccepted, ActionCancel, RoleFulfiller, "", true},
		{"cancel completed", StatusCompleted, ActionCancel, RoleRequester, "", true},
		{"cancel cancelled", StatusCancelled, ActionCancel, RoleRequester, "", true},
		{"unknown action", StatusRequested, Action("teleport"), RoleRequester, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTransition(tt.current, tt.action, tt.actor)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ValidateTransition(%q, %q, %q) = %q, want error", tt.current, tt.action, tt.actor, got)
				}
				var denied *TransitionError
				if !errors.As(err, &denied) {
					t.Fatalf("error = %v, want *TransitionError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateTransition returned error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ValidateTransition = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyServerStatus_ServerWins(t *testing.T) {
	got, ok := ApplyServerStatus(StatusRequested, StatusOffered)
	if !ok || got != StatusOffered {
		t.Fatalf("ApplyServerStatus = (%q, %v), want (offered, true)", got, ok)
	}
	// Non-terminal regressions still follow the server.
	got, ok = ApplyServerStatus(StatusAccepted, StatusRequested)
	if !ok || got != StatusRequested {
		t.Fatalf("ApplyServerStatus = (%q, %v), want (requested, true)", got, ok)
	}
}

func TestApplyServerStatus_NeverRegressesTerminal(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		for _, stale := range []Status{StatusRequested, StatusOffered, StatusAccepted} {
			got, ok := ApplyServerStatus(terminal, stale)
			if ok || got != terminal {
				t.Fatalf("ApplyServerStatus(%q, %q) = (%q, %v), want (%q, false)", terminal, stale, got, ok, terminal)
			}
		}
	}
	// A terminal server status is accepted even over another terminal one;
	// the server stays authoritative between finished states.
	got, ok := ApplyServerStatus(StatusCompleted, StatusCompleted)
	if !ok || got != StatusCompleted {
		t.Fatalf("ApplyServerStatus(completed, completed) = (%q, %v), want (completed, true)", got, ok)
	}
}

func TestParseRole_FoldsAliases(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"requester", RoleRequester},
		{"passenger", RoleRequester},
		{"PASSAGER", RoleRequester},
		{"rider", RoleRequester},
		{"fulfiller", RoleFulfiller},
		{"driver", RoleFulfiller},
		{"CHAUFFEUR", RoleFulfiller},
		{"  Driver  ", RoleFulfiller},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if err != nil {
			t.Fatalf("ParseRole(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRole_UnknownIsError(t *testing.T) {
	_, err := ParseRole("admin")
	if err == nil {
		t.Fatal("ParseRole returned nil error, want *UnknownRoleError")
	}
	var unknown *UnknownRoleError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownRoleError", err)
	}
	if unknown.Value != "admin" {
		t.Fatalf("UnknownRoleError.Value = %q, want admin", unknown.Value)
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("driving"); err == nil {
		t.Fatal("ParseStatus returned nil error for unknown status")
	}
	got, err := ParseStatus(" Completed ")
	if err != nil || got != StatusCompleted {
		t.Fatalf("ParseStatus = (%q, %v), want (completed, nil)", got, err)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, tt := range []struct {
		status Status
		want   bool
	}{
		{StatusRequested, false},
		{StatusOffered, false},
		{StatusAccepted, false},
		{StatusCompleted, true},
		{StatusCancelled, true},
	} {
		if got := tt.status.Terminal(); got != tt.want {
			t.Fatalf("%q.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
