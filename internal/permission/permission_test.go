package permission

import "testing"

func TestAdminHasEveryAction(t *testing.T) {
	actions := []Action{
		ActionView, ActionMarkMaterials, ActionChangeStatus, ActionAssignAuditor,
		ActionConfirmAssignment, ActionOpenYear, ActionRevertStatus,
		ActionViewChat, ActionSendChat,
	}
	for _, a := range actions {
		if !Has(RoleAdmin, a) {
			t.Errorf("Expected admin to have %s", a)
		}
	}
}

func TestNonAdminRestrictedActions(t *testing.T) {
	for _, role := range []Role{RoleAccountant, RoleBookkeeper} {
		for _, a := range []Action{ActionAssignAuditor, ActionOpenYear, ActionRevertStatus} {
			if Has(role, a) {
				t.Errorf("Expected %s to be denied %s", role, a)
			}
		}
		for _, a := range []Action{ActionView, ActionChangeStatus, ActionViewChat, ActionSendChat} {
			if !Has(role, a) {
				t.Errorf("Expected %s to have %s", role, a)
			}
		}
	}
}

func TestUnknownRoleDeniedEverything(t *testing.T) {
	if Has(Role("intern"), ActionView) {
		t.Error("Unknown role must be denied")
	}
	if _, ok := ParseRole("intern"); ok {
		t.Error("ParseRole should reject unknown roles")
	}
	if _, ok := ParseRole("accountant"); !ok {
		t.Error("ParseRole should accept accountant")
	}
}

func TestCanAccessChat(t *testing.T) {
	userID := "7f0f3df1-3f9d-4f4a-9f3e-3a6f58b9a001"
	otherID := "9b1a6c22-5e81-4c2e-8d1a-aa0f58b9a002"

	if !CanAccessChat(RoleBookkeeper, userID, ChatCase{AuditorID: userID}) {
		t.Error("Bookkeeper assigned as auditor must have chat access")
	}
	if CanAccessChat(RoleBookkeeper, userID, ChatCase{AuditorID: otherID}) {
		t.Error("Bookkeeper not assigned as auditor must be denied chat access")
	}
	if CanAccessChat(RoleBookkeeper, "", ChatCase{AuditorID: ""}) {
		t.Error("Bookkeeper without an ID must be denied even on an unassigned case")
	}
	if !CanAccessChat(RoleAccountant, otherID, ChatCase{AuditorID: userID}) {
		t.Error("Accountant must always have chat access")
	}
	if !CanAccessChat(RoleAdmin, otherID, ChatCase{}) {
		t.Error("Admin must always have chat access")
	}
	if CanAccessChat(Role("intern"), userID, ChatCase{AuditorID: userID}) {
		t.Error("Unknown role must be denied chat access")
	}
}
