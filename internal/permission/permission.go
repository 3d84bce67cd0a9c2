package permission

// Role is a closed set; anything outside it fails every check.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleBookkeeper Role = "bookkeeper"
)

// Action enumerates everything the back office can gate.
type Action string

const (
	ActionView              Action = "view"
	ActionMarkMaterials     Action = "mark_materials"
	ActionChangeStatus      Action = "change_status"
	ActionAssignAuditor     Action = "assign_auditor"
	ActionConfirmAssignment Action = "confirm_assignment"
	ActionOpenYear          Action = "open_year"
	ActionRevertStatus      Action = "revert_status"
	ActionViewChat          Action = "view_chat"
	ActionSendChat          Action = "send_chat"
)

// table is fixed at build time; an unknown (role, action) pair is a denial,
// not a lookup error.
var table = map[Role]map[Action]bool{
	RoleAdmin: {
		ActionView:              true,
		ActionMarkMaterials:     true,
		ActionChangeStatus:      true,
		ActionAssignAuditor:     true,
		ActionConfirmAssignment: true,
		ActionOpenYear:          true,
		ActionRevertStatus:      true,
		ActionViewChat:          true,
		ActionSendChat:          true,
	},
	RoleAccountant: {
		ActionView:              true,
		ActionMarkMaterials:     true,
		ActionChangeStatus:      true,
		ActionAssignAuditor:     false,
		ActionConfirmAssignment: true,
		ActionOpenYear:          false,
		ActionRevertStatus:      false,
		ActionViewChat:          true,
		ActionSendChat:          true,
	},
	RoleBookkeeper: {
		ActionView:              true,
		ActionMarkMaterials:     true,
		ActionChangeStatus:      true,
		ActionAssignAuditor:     false,
		ActionConfirmAssignment: true,
		ActionOpenYear:          false,
		ActionRevertStatus:      false,
		ActionViewChat:          true,
		ActionSendChat:          true,
	},
}

// ParseRole validates a raw role string from a JWT claim or DB row.
func ParseRole(raw string) (Role, bool) {
	r := Role(raw)
	_, ok := table[r]
	return r, ok
}

// Has reports whether role may perform action.
func Has(role Role, action Action) bool {
	return table[role][action]
}

// ChatCase is the slice of a balance case the chat gate needs.
type ChatCase struct {
	AuditorID string
}

// CanAccessChat gates both the feed and the composer. Admins and accountants
// always pass; a bookkeeper passes only while they are the case's assigned
// auditor, so it must be re-checked whenever the assignment changes.
func CanAccessChat(role Role, userID string, c ChatCase) bool {
	switch role {
	case RoleAdmin, RoleAccountant:
		return true
	case RoleBookkeeper:
		return userID != "" && c.AuditorID == userID
	default:
		return false
	}
}
