package workflow

// Status identifies one step in the annual-balance workflow.
type Status string

const (
	StatusWaitingForMaterials Status = "waiting_for_materials"
	StatusMaterialsReceived   Status = "materials_received"
	StatusAssignedToAuditor   Status = "assigned_to_auditor"
	StatusInProgress          Status = "in_progress"
	StatusWorkCompleted       Status = "work_completed"
	StatusOfficeApproved      Status = "office_approved"
	StatusReportTransmitted   Status = "report_transmitted"
	StatusAdvancesUpdated     Status = "advances_updated"
)

// ordered holds the full workflow sequence. office_approved sits between
// work_completed and report_transmitted but the normal path skips it; it is
// reachable only through an admin transition.
var ordered = []Status{
	StatusWaitingForMaterials,
	StatusMaterialsReceived,
	StatusAssignedToAuditor,
	StatusInProgress,
	StatusWorkCompleted,
	StatusOfficeApproved,
	StatusReportTransmitted,
	StatusAdvancesUpdated,
}

// Meta carries the fixed display attributes of a status.
type Meta struct {
	Label string
	Color string
}

var metaByStatus = map[Status]Meta{
	StatusWaitingForMaterials: {Label: "Waiting for materials", Color: "#9e9e9e"},
	StatusMaterialsReceived:   {Label: "Materials received", Color: "#03a9f4"},
	StatusAssignedToAuditor:   {Label: "Assigned to auditor", Color: "#673ab7"},
	StatusInProgress:          {Label: "In progress", Color: "#ff9800"},
	StatusWorkCompleted:       {Label: "Work completed", Color: "#8bc34a"},
	StatusOfficeApproved:      {Label: "Office approved", Color: "#009688"},
	StatusReportTransmitted:   {Label: "Report transmitted", Color: "#3f51b5"},
	StatusAdvancesUpdated:     {Label: "Advances updated", Color: "#4caf50"},
}

// milestoneColumn maps each status to the balance_cases column that is stamped
// when a case enters it. Statuses without a milestone map to "".
var milestoneColumn = map[Status]string{
	StatusMaterialsReceived: "materials_received_at",
	StatusInProgress:        "work_started_at",
	StatusWorkCompleted:     "work_completed_at",
	StatusOfficeApproved:    "office_approved_at",
	StatusReportTransmitted: "report_transmitted_at",
	StatusAdvancesUpdated:   "advances_updated_at",
}

// All returns the workflow sequence in order.
func All() []Status {
	out := make([]Status, len(ordered))
	copy(out, ordered)
	return out
}

// IsValid reports whether s is one of the defined workflow statuses.
func IsValid(s Status) bool {
	_, ok := metaByStatus[s]
	return ok
}

// MetaOf returns the display metadata for s.
func MetaOf(s Status) (Meta, bool) {
	m, ok := metaByStatus[s]
	return m, ok
}

// MilestoneColumn returns the timestamp column stamped when a case enters s,
// or "" when the status has no milestone.
func MilestoneColumn(s Status) string {
	return milestoneColumn[s]
}

func indexOf(s Status) int {
	for i, v := range ordered {
		if v == s {
			return i
		}
	}
	return -1
}

// Next returns the status that follows current on the normal path. The normal
// path skips office_approved entirely: work_completed advances straight to
// report_transmitted. The second return is false at the terminal status and
// for unrecognized input.
func Next(current Status) (Status, bool) {
	i := indexOf(current)
	if i < 0 || i == len(ordered)-1 {
		return "", false
	}
	next := ordered[i+1]
	if next == StatusOfficeApproved {
		next = ordered[i+2]
	}
	return next, true
}

// IsValidTransition reports whether an actor may move a case from one status
// to another. Admins may move to any different status, backward included.
// Everyone else may only advance exactly one step on the normal path, and may
// never target office_approved directly.
func IsValidTransition(from, to Status, isAdmin bool) bool {
	if !IsValid(from) || !IsValid(to) {
		return false
	}
	if isAdmin {
		return from != to
	}
	if to == StatusOfficeApproved {
		return false
	}
	next, ok := Next(from)
	return ok && to == next
}
